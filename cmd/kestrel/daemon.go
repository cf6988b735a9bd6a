package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kestrelsec/kestrel/internal/archive"
	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/controlplane"
	"github.com/kestrelsec/kestrel/internal/orchestrator"
	"github.com/kestrelsec/kestrel/internal/tools"
	"github.com/spf13/cobra"
)

var (
	listenAddr string
	dbPath     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the Kestrel daemon",
	Long:  `Starts the Kestrel daemon which exposes the HTTP API for running and inspecting tasks.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite task archive (overrides config)")
}

func defaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".kestrel", "config.yaml")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log.Println("Starting Kestrel daemon...")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.Archive.Path = dbPath
	}
	if cfg.Archive.Path == "" {
		homeDir, _ := os.UserHomeDir()
		cfg.Archive.Path = filepath.Join(homeDir, ".kestrel", "kestrel.db")
	}

	registry := tools.NewRegistry()
	tools.RegisterDefaults(registry)
	log.Printf("Registered %d tools", registry.Count())

	orch := orchestrator.New(registry, cfg)

	arch, err := archive.New(cfg.Archive.Path)
	if err != nil {
		return err
	}
	defer arch.Close()
	orch.SetArchive(arch)

	service := controlplane.NewService(orch)
	server := controlplane.NewServer(service, cfg.Server.Listen)

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
