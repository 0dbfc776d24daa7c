// Command fixedkvd is a line-oriented REPL driver over the fixed-width
// key-value store: get/insert/update/remove commands read from stdin.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/tuannm99/fixedkv/internal/bptree"
	"github.com/tuannm99/fixedkv/internal/buffer"
	"github.com/tuannm99/fixedkv/internal/config"
	"github.com/tuannm99/fixedkv/internal/kvstore"
	"github.com/tuannm99/fixedkv/internal/storage"
)

func main() {
	var cfgPath, dataFile string
	flag.StringVar(&cfgPath, "config", "", "path to a fixedkv yaml config; if empty, defaults are used")
	flag.StringVar(&dataFile, "data", "fixedkv.db", "backing file path, overridden by -config's storage.file")
	flag.Parse()

	cfg := config.Default(dataFile)
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		if loaded.Storage.File == "" {
			loaded.Storage.File = dataFile
		}
		cfg = loaded
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fixedkvd: %v", err)
	}
}

func run(cfg *config.Config) error {
	dm, err := storage.NewDiskManager(cfg.Storage.File)
	if err != nil {
		return fmt.Errorf("open backing file: %w", err)
	}
	defer func() { _ = dm.Close() }()

	pool := buffer.NewPoolManager(dm, cfg.Buffer.PoolSize)
	tree := bptree.NewTree(pool, cfg.Tree.LeafMax, cfg.Tree.InternalMax)
	store := kvstore.New(tree)

	slog.Info("fixedkvd: ready", "file", cfg.Storage.File, "pool_size", cfg.Buffer.PoolSize)
	fmt.Println("fixedkvd: commands are 'insert k v', 'update k v', 'remove k', 'get k'")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := dispatch(store, line); err != nil {
			fmt.Fprintln(os.Stdout, "error:", err)
		}
	}
	if err := pool.FlushAllPages(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return scanner.Err()
}

func dispatch(store *kvstore.Store, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "insert", "update":
		if len(fields) != 3 {
			return fmt.Errorf("usage: %s <key> <value>", fields[0])
		}
		k, v, err := parseKV(fields[1], fields[2])
		if err != nil {
			return err
		}
		var ok bool
		if fields[0] == "insert" {
			ok, err = store.Insert(k, v)
		} else {
			ok, err = store.Update(k, v)
		}
		if err != nil {
			return err
		}
		fmt.Println(ok)
		return nil

	case "remove":
		if len(fields) != 2 {
			return fmt.Errorf("usage: remove <key>")
		}
		k, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad key: %w", err)
		}
		ok, err := store.Remove(k)
		if err != nil {
			return err
		}
		fmt.Println(ok)
		return nil

	case "get":
		if len(fields) != 2 {
			return fmt.Errorf("usage: get <key>")
		}
		k, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad key: %w", err)
		}
		v, err := store.Get(k)
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil

	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func parseKV(ks, vs string) (int64, int32, error) {
	k, err := strconv.ParseInt(ks, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad key: %w", err)
	}
	v, err := strconv.ParseInt(vs, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad value: %w", err)
	}
	return k, int32(v), nil
}
