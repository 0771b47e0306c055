package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/alecthomas/kingpin.v2"

	"famkv/config"
	"famkv/kvs"
	"famkv/logging"
	"famkv/status"
	"famkv/types"

	epoch "famkv/epoch_manager"
	memorymanager "famkv/memory_manager"
)

/*
Interactive shell over one index.

    famkv> put color blue
    famkv> get color
    famkv> scan a z
    famkv> next
    famkv> del color
    famkv> stats

The heap file lives under the shelf base directory and the index
reopens from the pool's root slot on the next run.
*/

var (
	configPath = kingpin.Flag("config", "TOML config file overriding the environment.").String()
	pool       = kingpin.Flag("pool", "Pool id of the heap to open.").Default("0").Uint8()
	heapSize   = kingpin.Flag("heap-size", "Heap size in bytes when creating the pool.").Default("0").Int64()
	logLevel   = kingpin.Flag("log-level", "Log level: debug, info, warn, error.").Default("info").String()
)

func main() {
	kingpin.Parse()

	if err := logging.Init(*logLevel, true); err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	cfg := config.FromEnv()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	size := cfg.HeapSize
	if *heapSize > 0 {
		size = *heapSize
	}

	mm := memorymanager.NewManager(cfg, epoch.Get())
	store, st := kvs.Open(mm, types.PoolID(*pool), size, 0)
	if st.NotOk() {
		fmt.Fprintf(os.Stderr, "open index: %s\n", st)
		os.Exit(1)
	}
	defer store.Close()

	keyBuf := make([]byte, types.MaxKeyLen)
	valBuf := make([]byte, types.MaxValLen)
	scanHandle := -1

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("famkv> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := strings.ToLower(fields[0])

		switch cmd {
		case "exit", "quit":
			return

		case "put":
			if len(fields) != 3 {
				fmt.Println("usage: put <key> <value>")
				continue
			}
			report(store.Put([]byte(fields[1]), []byte(fields[2])))

		case "get":
			if len(fields) != 2 {
				fmt.Println("usage: get <key>")
				continue
			}
			n, st := store.Get([]byte(fields[1]), valBuf)
			if st.Ok() {
				fmt.Printf("%s\n", valBuf[:n])
			} else {
				report(st)
			}

		case "del":
			if len(fields) != 2 {
				fmt.Println("usage: del <key>")
				continue
			}
			report(store.Del([]byte(fields[1])))

		case "scan":
			begin, beginIncl := types.OpenBoundary, false
			end, endIncl := types.OpenBoundary, false
			if len(fields) >= 2 {
				begin, beginIncl = []byte(fields[1]), true
			}
			if len(fields) >= 3 {
				end, endIncl = []byte(fields[2]), true
			}
			h, kn, vn, st := store.Scan(keyBuf, valBuf, begin, beginIncl, end, endIncl)
			if st.NotOk() {
				report(st)
				continue
			}
			scanHandle = h
			fmt.Printf("%s = %s\n", keyBuf[:kn], valBuf[:vn])

		case "next":
			if scanHandle < 0 {
				fmt.Println("no scan in progress")
				continue
			}
			kn, vn, st := store.GetNext(scanHandle, keyBuf, valBuf)
			if st.NotOk() {
				report(st)
				continue
			}
			fmt.Printf("%s = %s\n", keyBuf[:kn], valBuf[:vn])

		case "maintenance":
			store.Maintenance()
			fmt.Println("ok")

		case "stats":
			fmt.Printf("pool %d  root %#x  heap %s\n",
				*pool, uint64(store.Root()), humanize.IBytes(uint64(size)))

		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}

func report(st status.Status) {
	if st.Ok() {
		fmt.Println("ok")
	} else {
		fmt.Println(st.String())
	}
}
