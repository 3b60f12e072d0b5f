// Command clawmem-index walks every configured collection once,
// updating the store, fragment embeddings, A-MEM notes, and the
// relation graph, then exits. A file watcher invoking this (or an
// equivalent in-process call) on every change is out of scope here;
// this binary only needs to be safe to run repeatedly and
// incrementally, which IndexCollection's hash-based change
// detection already guarantees.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	clawmem "github.com/clawmem/clawmem"
)

func main() {
	configPath := flag.String("config", "", "path to index.yml (defaults to ~/.config/clawmem/index.yml)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	var cfg clawmem.Config
	var err error
	if *configPath != "" {
		cfg, err = clawmem.LoadConfigFrom(*configPath)
	} else {
		cfg, err = clawmem.LoadConfig()
	}
	if err != nil {
		slog.Error("clawmem-index: loading config failed", "error", err)
		os.Exit(1)
	}

	engine, err := clawmem.New(cfg, slog.Default())
	if err != nil {
		slog.Error("clawmem-index: building engine failed", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := engine.IndexAll(context.Background()); err != nil {
		slog.Error("clawmem-index: indexing failed", "error", err)
		os.Exit(1)
	}
}
