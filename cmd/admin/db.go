package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voxelstream.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index.db)")
	slot := fs.Int("slot", -1, "slot index (slot query)")
	x := fs.Int("x", 0, "chunk x (chunk query)")
	y := fs.Int("y", 0, "chunk y (chunk query)")
	z := fs.Int("z", 0, "chunk z (chunk query)")
	_ = fs.Parse(args)

	q := "slot"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index.db")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	var rows []indexdb.Upload
	switch q {
	case "slot":
		if *slot < 0 {
			fmt.Fprintln(os.Stderr, "missing -slot")
			os.Exit(2)
		}
		rows, err = idx.SlotHistory(context.Background(), *slot)
	case "chunk":
		rows, err = idx.ChunkHistory(context.Background(), [3]int{*x, *y, *z})
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range rows {
		_ = enc.Encode(r)
	}
}
