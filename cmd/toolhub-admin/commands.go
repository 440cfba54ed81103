// ABOUTME: Subcommands of the admin CLI
// ABOUTME: Each one maps to a single admin API call and prints a colored summary

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/2389/toolhub/internal/admin"
	"github.com/2389/toolhub/internal/auth"
	"github.com/2389/toolhub/internal/store"
	"github.com/2389/toolhub/internal/tools"
)

// parseArgs splits args into positionals and --flag values. Only the named
// flags are accepted; each takes a value as "--flag v" or "--flag=v".
func parseArgs(args []string, flags ...string) ([]string, map[string]string, error) {
	known := make(map[string]bool, len(flags))
	for _, f := range flags {
		known[f] = true
	}

	var positional []string
	values := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
			continue
		}
		name := strings.TrimLeft(arg, "-")
		value, hasValue := "", false
		if k, v, ok := strings.Cut(name, "="); ok {
			name, value, hasValue = k, v, true
		}
		if !known[name] {
			return nil, nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		values[name] = value
	}
	return positional, values, nil
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

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// loadDefinition reads a tool definition from a YAML or JSON file. Keys use
// the same names as the JSON API (handlerType, rolesPermitted, ...).
func loadDefinition(path string) (tools.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tools.Definition{}, fmt.Errorf("reading definition: %w", err)
	}

	var def tools.Definition
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &def); err != nil {
			return tools.Definition{}, fmt.Errorf("parsing definition: %w", err)
		}
		return def, nil
	}

	// YAML goes through a generic value so nested schema and handler config
	// objects keep their shape as raw JSON.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return tools.Definition{}, fmt.Errorf("parsing definition: %w", err)
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return tools.Definition{}, fmt.Errorf("converting definition: %w", err)
	}
	if err := json.Unmarshal(asJSON, &def); err != nil {
		return tools.Definition{}, fmt.Errorf("parsing definition: %w", err)
	}
	return def, nil
}

func cmdTools(ctx context.Context, c *client, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		return cmdToolsList(ctx, c)
	}
	switch args[0] {
	case "register":
		if len(args) != 2 {
			return errors.New("usage: tools register <file>")
		}
		return cmdToolsRegister(ctx, c, args[1])
	case "remove":
		if len(args) != 2 {
			return errors.New("usage: tools remove <name>")
		}
		if err := c.do(ctx, http.MethodDelete, "/tools/"+url.PathEscape(args[1]), nil, nil); err != nil {
			return err
		}
		color.Green("  ✓ Removed tool %s", args[1])
		return nil
	default:
		return fmt.Errorf("unknown tools subcommand: %s (use list, register, remove)", args[0])
	}
}

func cmdToolsList(ctx context.Context, c *client) error {
	var resp struct {
		Tools []tools.Definition `json:"tools"`
	}
	if err := c.do(ctx, http.MethodGet, "/tools", nil, &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Tools")
	cyan.Println("  -----")

	if len(resp.Tools) == 0 {
		fmt.Println("  (no tools)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tHANDLER\tROLES\tCREATOR\tDESCRIPTION")
	fmt.Fprintln(w, "  ----\t-------\t-----\t-------\t-----------")
	for _, d := range resp.Tools {
		roles := strings.Join(d.RolesPermitted, ",")
		if d.AlwaysVisible {
			roles = "*"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", d.Name, d.HandlerType, roles, d.Creator, truncate(d.Description, 40))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdToolsRegister(ctx context.Context, c *client, path string) error {
	def, err := loadDefinition(path)
	if err != nil {
		return err
	}
	var resp admin.RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/tools", def, &resp); err != nil {
		return err
	}
	color.Green("  ✓ Tool %s %s", resp.Name, resp.Event)
	return nil
}

func cmdUsers(ctx context.Context, c *client, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		return cmdUsersList(ctx, c)
	}
	switch args[0] {
	case "upsert":
		pos, flags, err := parseArgs(args[1:], "roles", "tools")
		if err != nil {
			return err
		}
		if len(pos) != 1 {
			return errors.New("usage: users upsert <email> --roles a,b [--tools x,y]")
		}
		req := admin.UserRequest{Roles: splitList(flags["roles"])}
		if v, ok := flags["tools"]; ok {
			req.ToolsAvailable = splitList(v)
		}
		if err := c.do(ctx, http.MethodPut, userPath(pos[0]), req, nil); err != nil {
			return err
		}
		color.Green("  ✓ Saved user %s", pos[0])
		return nil
	case "roles":
		if len(args) != 3 {
			return errors.New("usage: users roles <email> <a,b>")
		}
		req := admin.RolesRequest{Roles: splitList(args[2])}
		if err := c.do(ctx, http.MethodPut, userPath(args[1], "roles"), req, nil); err != nil {
			return err
		}
		color.Green("  ✓ Roles for %s: %s", args[1], strings.Join(req.Roles, ", "))
		return nil
	default:
		return fmt.Errorf("unknown users subcommand: %s (use list, upsert, roles)", args[0])
	}
}

func cmdUsersList(ctx context.Context, c *client) error {
	var resp struct {
		Users []store.UserIdentity `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/users", nil, &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Users")
	cyan.Println("  -----")

	if len(resp.Users) == 0 {
		fmt.Println("  (no users)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  EMAIL\tROLES\tSHARED\tHIDDEN")
	fmt.Fprintln(w, "  -----\t-----\t------\t------")
	for _, u := range resp.Users {
		shared := make([]string, 0, len(u.SharedTools))
		for _, s := range u.SharedTools {
			shared = append(shared, s.ToolID)
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", u.Email,
			strings.Join(u.Roles, ","), strings.Join(shared, ","), strings.Join(u.HiddenTools, ","))
	}
	w.Flush()
	fmt.Println()
	return nil
}

// emailAndTool parses "<email> <tool>" plus any allowed flags.
func emailAndTool(cmd string, args []string, flags ...string) (string, string, map[string]string, error) {
	pos, values, err := parseArgs(args, flags...)
	if err != nil {
		return "", "", nil, err
	}
	if len(pos) != 2 {
		return "", "", nil, fmt.Errorf("usage: %s <email> <tool>", cmd)
	}
	return pos[0], pos[1], values, nil
}

func cmdShare(ctx context.Context, c *client, args []string) error {
	email, tool, flags, err := emailAndTool("share", args, "level")
	if err != nil {
		return err
	}
	req := admin.ShareRequest{Tool: tool, AccessLevel: store.AccessLevel(flags["level"])}
	if err := c.do(ctx, http.MethodPost, userPath(email, "shares"), req, nil); err != nil {
		return err
	}
	color.Green("  ✓ Shared %s with %s", tool, email)
	return nil
}

func cmdUnshare(ctx context.Context, c *client, args []string) error {
	email, tool, _, err := emailAndTool("unshare", args)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodDelete, userPath(email, "shares", tool), nil, nil); err != nil {
		return err
	}
	color.Green("  ✓ Revoked %s from %s", tool, email)
	return nil
}

func cmdHide(ctx context.Context, c *client, args []string) error {
	email, tool, _, err := emailAndTool("hide", args)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPost, userPath(email, "hidden"), admin.HideRequest{Tool: tool}, nil); err != nil {
		return err
	}
	color.Green("  ✓ Hid %s from %s", tool, email)
	return nil
}

func cmdUnhide(ctx context.Context, c *client, args []string) error {
	email, tool, _, err := emailAndTool("unhide", args)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodDelete, userPath(email, "hidden", tool), nil, nil); err != nil {
		return err
	}
	color.Green("  ✓ Unhid %s for %s", tool, email)
	return nil
}

func cmdAudit(ctx context.Context, c *client, args []string) error {
	pos, flags, err := parseArgs(args, "user", "tool", "event", "since", "until", "limit")
	if err != nil {
		return err
	}
	if len(pos) > 0 {
		return fmt.Errorf("unexpected argument: %s", pos[0])
	}
	if v, ok := flags["limit"]; ok {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("--limit must be an integer: %w", err)
		}
	}

	q := url.Values{}
	for k, v := range flags {
		q.Set(k, v)
	}
	path := "/audit"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Entries []store.AuditEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Audit Log")
	cyan.Println("  ---------")

	if len(resp.Entries) == 0 {
		fmt.Println("  (no entries)")
		fmt.Println()
		return nil
	}

	red := color.New(color.FgRed)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tEVENT\tUSER\tTOOL\tSTATUS\tREASON")
	fmt.Fprintln(w, "  ----\t-----\t----\t----\t------\t------")
	for _, e := range resp.Entries {
		status := e.Status
		if status == store.AuditStatusDenied {
			status = red.Sprint(status)
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("Jan 02 15:04:05"), e.Event, e.User, e.Tool, status, e.Reason)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdSyncBuiltins(ctx context.Context, c *client) error {
	var report admin.SyncReport
	if err := c.do(ctx, http.MethodPost, "/builtins/sync", nil, &report); err != nil {
		return err
	}
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	green.Printf("  ✓ Registered %d built-in tools\n", len(report.Registered))
	for _, name := range report.Removed {
		yellow.Printf("  - Removed stale tool %s", name)
		if users := report.Pruned[name]; len(users) > 0 {
			fmt.Printf(" (revoked from %s)", strings.Join(users, ", "))
		}
		fmt.Println()
	}
	return nil
}

// generateKey returns a random 32-byte hex API key.
func generateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return "th_" + hex.EncodeToString(b), nil
}

func cmdHashKey(args []string) error {
	if len(args) > 1 {
		return errors.New("usage: hash-key [key]")
	}

	key := ""
	generated := false
	if len(args) == 1 {
		key = args[0]
	} else {
		var err error
		if key, err = generateKey(); err != nil {
			return err
		}
		generated = true
	}

	hash, err := auth.HashAPIKey(key)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	if generated {
		cyan.Print("  Key:      ")
		fmt.Println(key)
		yellow.Println("  Store the key now; only the hash goes in the config.")
	}
	cyan.Print("  key_hash: ")
	fmt.Println(hash)
	return nil
}
