// ABOUTME: Admin CLI for toolhub tool, user and grant management
// ABOUTME: Uses the HTTP admin API with bearer authentication

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
)

const banner = `
 _              _ _           _                   _           _
| |_ ___   ___ | | |__  _   _| |__        __ _  __| |_ __ ___ (_)_ __
| __/ _ \ / _ \| | '_ \| | | | '_ \ _____/ _' |/ _' | '_ ' _ \| | '_ \
| || (_) | (_) | | | | | |_| | |_) |_____| (_| | (_| | | | | | | | | | |
 \__\___/ \___/|_|_| |_|\__,_|_.__/      \__,_|\__,_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}
	if cmd == "hash-key" {
		if err := cmdHashKey(args); err != nil {
			color.Red("Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	c := newClient(getEnv("TOOLHUB_URL", "http://localhost:8080"), getToken())
	if err := run(ctx, c, cmd, args); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches one API-backed command.
func run(ctx context.Context, c *client, cmd string, args []string) error {
	switch cmd {
	case "tools":
		return cmdTools(ctx, c, args)
	case "users":
		return cmdUsers(ctx, c, args)
	case "share":
		return cmdShare(ctx, c, args)
	case "unshare":
		return cmdUnshare(ctx, c, args)
	case "hide":
		return cmdHide(ctx, c, args)
	case "unhide":
		return cmdUnhide(ctx, c, args)
	case "audit":
		return cmdAudit(ctx, c, args)
	case "sync-builtins":
		return cmdSyncBuiltins(ctx, c)
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: toolhub-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  tools                              List registered tools")
	fmt.Println("  tools register <file>              Register a tool from a YAML or JSON definition")
	fmt.Println("  tools remove <name>                Remove a tool and prune its grants")
	fmt.Println("  users                              List users with roles and grants")
	fmt.Println("  users upsert <email> --roles a,b   Create or update a user")
	fmt.Println("        [--tools x,y]")
	fmt.Println("  users roles <email> <a,b>          Replace a user's roles")
	fmt.Println("  share <email> <tool> [--level L]   Share a tool (read or write)")
	fmt.Println("  unshare <email> <tool>             Revoke a share")
	fmt.Println("  hide <email> <tool>                Hide a tool from a user's list")
	fmt.Println("  unhide <email> <tool>              Remove a hide entry")
	fmt.Println("  audit [--user U] [--tool T]        Show the audit log")
	fmt.Println("        [--event E] [--limit N]")
	fmt.Println("  sync-builtins                      Re-sync built-in tools")
	fmt.Println("  hash-key [key]                     Hash an API key for auth.api_keys (generates one if omitted)")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  TOOLHUB_URL     Server URL (default: http://localhost:8080)")
	fmt.Println("  TOOLHUB_TOKEN   Bearer token with the admin role")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  export TOOLHUB_TOKEN=\"$(toolhub token --email root@example.com --roles admin)\"")
	fmt.Println("  toolhub-admin tools register motd.yaml")
	fmt.Println("  toolhub-admin share alice@example.com motd")
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getToken returns the token from TOOLHUB_TOKEN or ~/.config/toolhub/token.
func getToken() string {
	if token := os.Getenv("TOOLHUB_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "toolhub", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
