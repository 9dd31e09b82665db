package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	persistlog "voxelstream.ai/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the tick log files under a data dir.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	files, err := persistlog.ListFiles(filepath.Join(*dataDir, "ticks"), "ticks")
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, f := range files {
		fmt.Println(filepath.Base(f))
	}
}

// stateCmd dumps a running streamer's metrics.
func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8090", "streamer http address")
	_ = fs.Parse(args)

	base := strings.TrimSpace(*addr)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(base, "/") + "/metrics")
	if err != nil {
		fmt.Fprintln(os.Stderr, "get:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintln(os.Stderr, "status:", resp.Status)
		os.Exit(1)
	}
	_, _ = io.Copy(os.Stdout, resp.Body)
}
