// Copyright 2025 Oppie Thunder Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tidecache "github.com/oppie-vault/tidecache/pkg/tidecache"
)

// Version metadata. Overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	switch os.Args[1] {
	case "get":
		handleGet()
	case "set":
		handleSet()
	case "delete":
		handleDelete()
	case "exists":
		handleExists()
	case "keys":
		handleKeys()
	case "clear":
		handleClear()
	case "vacuum":
		handleVacuum()
	case "stats":
		handleStats()
	case "version", "--version", "-v":
		handleVersion()
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println(`tidecache-cli
Commands:
  get     --dir <path> --key <key>
  set     --dir <path> --key <key> --value <value> [--ttl <seconds>] [--tags a,b,c]
  delete  --dir <path> --key <key>
  exists  --dir <path> --key <key>
  keys    --dir <path>
  clear   --dir <path>
  vacuum  --dir <path>
  stats   --dir <path>
  version [-v|--version]`)
}

func openCache(dir string) *tidecache.Cache {
	cfg := tidecache.DefaultConfig(dir)
	c, err := tidecache.New(cfg)
	if err != nil {
		die(err)
	}
	return c
}

func handleGet() {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	dir := fs.String("dir", ".", "cache directory")
	key := fs.String("key", "", "cache key")
	_ = fs.Parse(os.Args[2:])

	c := openCache(*dir)
	defer c.Close()

	val, err := c.Get(*key)
	if err != nil {
		die(err)
	}
	if val == nil {
		fmt.Println("(not found)")
		return
	}
	os.Stdout.Write(val)
	fmt.Println()
}

func handleSet() {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	dir := fs.String("dir", ".", "cache directory")
	key := fs.String("key", "", "cache key")
	value := fs.String("value", "", "value to store")
	ttl := fs.Int64("ttl", 0, "expiry in seconds from now, 0 for none")
	tags := fs.String("tags", "", "comma-separated tags")
	_ = fs.Parse(os.Args[2:])

	c := openCache(*dir)
	defer c.Close()

	var expire *int64
	if *ttl > 0 {
		t := time.Now().Unix() + *ttl
		expire = &t
	}
	var tagList []string
	if *tags != "" {
		tagList = strings.Split(*tags, ",")
	}

	if err := c.Set(*key, []byte(*value), expire, tagList); err != nil {
		die(err)
	}
}

func handleDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	dir := fs.String("dir", ".", "cache directory")
	key := fs.String("key", "", "cache key")
	_ = fs.Parse(os.Args[2:])

	c := openCache(*dir)
	defer c.Close()

	existed, err := c.Delete(*key)
	if err != nil {
		die(err)
	}
	fmt.Println(existed)
}

func handleExists() {
	fs := flag.NewFlagSet("exists", flag.ExitOnError)
	dir := fs.String("dir", ".", "cache directory")
	key := fs.String("key", "", "cache key")
	_ = fs.Parse(os.Args[2:])

	c := openCache(*dir)
	defer c.Close()

	ok, err := c.Exists(*key)
	if err != nil {
		die(err)
	}
	fmt.Println(ok)
}

func handleKeys() {
	fs := flag.NewFlagSet("keys", flag.ExitOnError)
	dir := fs.String("dir", ".", "cache directory")
	_ = fs.Parse(os.Args[2:])

	c := openCache(*dir)
	defer c.Close()

	for _, k := range c.Keys() {
		fmt.Println(k)
	}
}

func handleClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	dir := fs.String("dir", ".", "cache directory")
	_ = fs.Parse(os.Args[2:])

	c := openCache(*dir)
	defer c.Close()

	if err := c.Clear(); err != nil {
		die(err)
	}
}

func handleVacuum() {
	fs := flag.NewFlagSet("vacuum", flag.ExitOnError)
	dir := fs.String("dir", ".", "cache directory")
	_ = fs.Parse(os.Args[2:])

	c := openCache(*dir)
	defer c.Close()

	if err := c.Vacuum(); err != nil {
		die(err)
	}
}

func handleStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dir := fs.String("dir", ".", "cache directory")
	_ = fs.Parse(os.Args[2:])

	c := openCache(*dir)
	defer c.Close()

	stats := c.Stats()
	fmt.Printf("hits=%d misses=%d sets=%d deletes=%d evictions=%d errors=%d hit_rate=%.4f\n",
		stats.Hits, stats.Misses, stats.Sets, stats.Deletes, stats.Evictions, stats.Errors, stats.HitRate())
	fmt.Printf("total_size=%d entry_count=%d tier_hits={hot:%d warm:%d cold:%d}\n",
		stats.TotalSize, stats.EntryCount, stats.TierHits.Hot, stats.TierHits.Warm, stats.TierHits.Cold)
}

func handleVersion() {
	fmt.Printf("tidecache-cli %s (commit %s, built %s)\n", version, commit, date)
}

func die(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
