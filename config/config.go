package config

/*
Shelf configuration.

Heap files ("shelves") live under a base directory and are namespaced by
a user identifier, so cooperating processes of the same user find the
same pools. Values come from the environment, optionally overridden by a
TOML file:

    SHELF_BASE_DIR   directory holding heap files (default: <tmp>/famkv)
    SHELF_USER       namespace prefix (default: current OS user)
    FAMKV_HEAP_SIZE  default heap size in bytes when creating pools
*/

import (
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// DefaultHeapSize is used when no size is configured: 256 MiB.
const DefaultHeapSize = 256 << 20

// Config carries the shelf settings.
type Config struct {
	ShelfBaseDir string `toml:"shelf_base_dir"`
	ShelfUser    string `toml:"shelf_user"`
	HeapSize     int64  `toml:"heap_size"`
}

// FromEnv builds a Config from the environment with defaults filled in.
func FromEnv() Config {
	c := Config{
		ShelfBaseDir: os.Getenv("SHELF_BASE_DIR"),
		ShelfUser:    os.Getenv("SHELF_USER"),
		HeapSize:     DefaultHeapSize,
	}
	if c.ShelfBaseDir == "" {
		c.ShelfBaseDir = filepath.Join(os.TempDir(), "famkv")
	}
	if c.ShelfUser == "" {
		if u, err := user.Current(); err == nil {
			c.ShelfUser = u.Username
		} else {
			c.ShelfUser = "famkv"
		}
	}
	if v := os.Getenv("FAMKV_HEAP_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.HeapSize = n
		}
	}
	return c
}

// Load reads a TOML file over the environment defaults. Fields absent
// from the file keep their FromEnv values.
func Load(path string) (Config, error) {
	c := FromEnv()
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return c, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

// HeapPath returns the file path of the heap with the given pool id,
// following the <base>/<user>_<pool>.heap naming scheme.
func (c Config) HeapPath(pool uint8) string {
	return filepath.Join(c.ShelfBaseDir, c.ShelfUser+"_"+strconv.Itoa(int(pool))+".heap")
}
