// Spins up the offline cache server, compatible w/ the Redis protocol.

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nobletooth/offline/pkg/cache"
	"github.com/nobletooth/offline/pkg/config"
	"github.com/nobletooth/offline/pkg/port"
	"github.com/nobletooth/offline/pkg/storage"
	"github.com/nobletooth/offline/pkg/utils"
)

var printVersion = flag.Bool("print_version", false, "Print the version and exit.")

func main() {
	config.InitFlags()
	utils.InitLogging()

	if *printVersion {
		slog.Info("Offline build info.", "version", utils.Version, "commit", utils.Commit, "build", utils.BuildTime)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() { // Listen for OS interrupts in the background.
		sig := <-signals
		slog.Info("Received termination signal, cancelling server context.", "signal", sig)
		cancel()
	}()

	store, err := storage.OpenLocalStorage()
	if err != nil {
		slog.Error("Failed to open local storage.", "error", err)
		os.Exit(1)
	}
	offlineCache, err := cache.New(store)
	if err != nil {
		slog.Error("Failed to create cache.", "error", err)
		os.Exit(1)
	}
	if !offlineCache.Supported() {
		slog.Warn("Local storage rejects writes, the cache will stay empty.")
	}
	snapshotterDone := make(chan struct{})
	go func() {
		defer close(snapshotterDone)
		store.RunSnapshotter(ctx)
	}()

	serverErr := port.RunRedisServer(ctx, offlineCache)
	cancel() // Also stops the snapshotter when the server exits on its own.
	<-snapshotterDone
	if err := store.Close(); err != nil {
		slog.Error("Failed to close local storage.", "error", err)
	}
	if serverErr != nil {
		slog.Error("Offline server stopped.", "error", serverErr)
		os.Exit(1)
	}
}
