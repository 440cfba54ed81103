// ABOUTME: init, token and health subcommands for the server binary
// ABOUTME: init writes a YAML config with a fresh secret; token mints JWTs from it

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/toolhub/internal/auth"
	"github.com/2389/toolhub/internal/config"
)

// defaultTokenTTL is 30 days.
const defaultTokenTTL = 30 * 24 * time.Hour

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	color.New(color.FgGreen).Print("healthy ")
	fmt.Println(string(body))
	return nil
}

// tokenOptions are the parsed arguments of the token command.
type tokenOptions struct {
	Email  string
	Roles  []string
	Tools  []string
	Hidden []string
	TTL    time.Duration
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseTokenArgs(args []string) (tokenOptions, error) {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "identity email")
	roles := fs.String("roles", "", "comma-separated roles")
	toolsList := fs.String("tools", "", "comma-separated tool allow-list")
	hidden := fs.String("hidden", "", "comma-separated tools to hide from listings")
	ttl := fs.Duration("ttl", defaultTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return tokenOptions{}, err
	}
	if fs.NArg() > 0 {
		return tokenOptions{}, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	opts := tokenOptions{
		Email:  strings.TrimSpace(*email),
		Roles:  splitList(*roles),
		Hidden: splitList(*hidden),
		TTL:    *ttl,
	}
	if *toolsList != "" {
		opts.Tools = splitList(*toolsList)
	}
	if opts.Email == "" {
		return tokenOptions{}, errors.New("--email is required")
	}
	if opts.TTL <= 0 {
		return tokenOptions{}, errors.New("--ttl must be positive")
	}
	return opts, nil
}

// mintToken signs a JWT for opts with secret.
func mintToken(secret string, opts tokenOptions) (string, error) {
	verifier, err := auth.NewJWTVerifier([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("creating JWT verifier: %w", err)
	}
	return verifier.Generate(auth.Identity{
		Email:          opts.Email,
		Roles:          opts.Roles,
		ToolsAvailable: opts.Tools,
		HiddenTools:    opts.Hidden,
	}, opts.TTL)
}

func runToken(args []string) error {
	opts, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	configPath := config.DefaultPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret not configured in %s", configPath)
	}

	token, err := mintToken(cfg.Auth.JWTSecret, opts)
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(opts.TTL).UTC()
	cyan := color.New(color.FgCyan)
	cyan.Fprintf(os.Stderr, "  Token for %s", opts.Email)
	color.New(color.FgHiBlack).Fprintf(os.Stderr, " roles=%v expires %s\n", opts.Roles, expiresAt.Format("Jan 02, 2006"))
	fmt.Println(token)
	return nil
}

// initAnswers are the values collected by the init prompts.
type initAnswers struct {
	HTTPAddr  string
	BasePath  string
	DBPath    string
	JWTSecret string
	Mode      string
	LogLevel  string
	LogFormat string
}

// generateSecret returns a random base64 secret of 32 bytes.
func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

// renderConfig produces the YAML written by init.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# toolhub configuration\n")
	cfg.WriteString("# Generated by toolhub init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", a.HTTPAddr))
	cfg.WriteString(fmt.Sprintf("  base_path: %q\n", a.BasePath))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n", a.DBPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: %q\n", a.JWTSecret))
	cfg.WriteString("\n")

	cfg.WriteString("sessions:\n")
	cfg.WriteString("  heartbeat_interval: \"30s\"\n")
	cfg.WriteString("  idle_timeout: \"30m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("tools:\n")
	cfg.WriteString("  call_timeout: \"30s\"\n")
	cfg.WriteString("  builtins_enabled: true\n")
	cfg.WriteString("\n")

	cfg.WriteString("capability:\n")
	cfg.WriteString(fmt.Sprintf("  mode: %q\n", a.Mode))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", a.LogFormat))
	return cfg.String()
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("toolhub configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	defaultDBPath := filepath.Join(config.DefaultDataPath(), "toolhub.db")

	outputFile := prompt(reader, "Config file path", config.DefaultPath())
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	fmt.Println("\n--- Server Configuration ---")
	answers := initAnswers{JWTSecret: secret}
	answers.HTTPAddr = prompt(reader, "HTTP address", "localhost:8080")
	answers.BasePath = prompt(reader, "Base path for MCP endpoints", "")

	fmt.Println("\n--- Database Configuration ---")
	answers.DBPath = prompt(reader, "SQLite database path", defaultDBPath)

	fmt.Println("\n--- Capability Configuration ---")
	answers.Mode = prompt(reader, "Capability mode (live/claims)", "live")

	fmt.Println("\n--- Logging Configuration ---")
	answers.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	answers.LogFormat = prompt(reader, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file holds the signing secret.
	if err := os.WriteFile(outputFile, []byte(renderConfig(answers)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(answers.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("\n  ✓ Config written to %s\n", outputFile)
	green.Printf("  ✓ Data directory: %s\n", dataDir)
	fmt.Println("\nNext steps:")
	fmt.Println("  toolhub token --email you@example.com --roles admin")
	fmt.Println("  toolhub serve")
	return nil
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
