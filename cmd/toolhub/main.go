// ABOUTME: Entry point for the toolhub server
// ABOUTME: serve, init, token and health subcommands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/toolhub/internal/config"
	"github.com/2389/toolhub/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _              _ _           _
| |_ ___   ___ | | |__  _   _| |__
| __/ _ \ / _ \| | '_ \| | | | '_ \
| || (_) | (_) | | | | | |_| | |_) |
 \__\___/ \___/|_|_| |_|\__,_|_.__/
`

func usage() {
	fmt.Println("Usage: toolhub <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                                Start the server")
	fmt.Println("  init                                 Create a new config file interactively")
	fmt.Println("  token --email EMAIL [--roles a,b]    Mint a bearer token from the configured secret")
	fmt.Println("        [--tools x,y] [--hidden x,y] [--ttl 720h]")
	fmt.Println("  health                               Check server health")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken(os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:       %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Endpoints:  %s/sse  %s/mcp\n", cfg.Server.BasePath, cfg.Server.BasePath)
	green.Print("    ▶ ")
	fmt.Printf("Capability: ")
	cyan.Print(cfg.Capability.Mode)
	if !cfg.Tools.Builtins() {
		yellow.Print(" [builtins disabled]")
	}
	fmt.Println()
	fmt.Println()

	logger.Info("starting toolhub",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
	)

	gateway.Version = version
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}
