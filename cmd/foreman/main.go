package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/foreman/internal/api"
	"github.com/mattjoyce/foreman/internal/config"
	"github.com/mattjoyce/foreman/internal/events"
	"github.com/mattjoyce/foreman/internal/log"
	"github.com/mattjoyce/foreman/internal/store"
	"github.com/mattjoyce/foreman/internal/supervisor"
	"github.com/mattjoyce/foreman/internal/task"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "version":
		fmt.Printf("foreman version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`foreman - worker process orchestrator

Usage:
  foreman <command> [flags]

Commands:
  start     Start the orchestrator in foreground
  version   Show version information
  help      Show this help message

Start flags:
  --config <path>   Configuration file (default: foreman.yaml)
`)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "foreman.yaml", "configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")

	if hash, err := config.ComputeBlake3Hash(*configPath); err == nil {
		logger.Info("configuration loaded", "path", *configPath, "blake3", hash)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.OpenSQLite(ctx, cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return 1
	}
	defer st.Close()

	hub := events.NewBroadcaster(st)
	sup := supervisor.New(st, hub, cfg.Service, cfg.Workers.Dir)
	monitor := supervisor.NewMonitor(sup, cfg.Service.HealthInterval)
	dispatcher := task.New(sup, st, hub, cfg.Service.TaskTimeout)

	monitor.Start(ctx)

	logger.Info("foreman started", "name", cfg.Service.Name, "version", version)

	exitCode := 0
	if cfg.API.Enabled {
		server := api.New(cfg.API, sup, dispatcher, st, hub, log.WithComponent("api"))
		if err := server.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("API server failed", "error", err)
			exitCode = 1
		}
	} else {
		<-ctx.Done()
	}

	logger.Info("shutting down")
	monitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sup.Shutdown(shutdownCtx)
	dispatcher.Wait()

	logger.Info("shutdown complete")
	return exitCode
}
