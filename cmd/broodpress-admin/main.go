// ABOUTME: Admin CLI for broodpress API keys, article review and the audit log
// ABOUTME: Works directly on the local database named by the broodpress config

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/2389/broodpress/internal/admin"
	"github.com/2389/broodpress/internal/auth"
	"github.com/2389/broodpress/internal/config"
	"github.com/2389/broodpress/internal/content"
	"github.com/2389/broodpress/internal/store"
)

const banner = `
 _                     _                                 _           _
| |__  _ __ ___   ___ | |_ __  _ __ ___  ___ ___    __ _| |_ __ ___ (_)_ __
| '_ \| '__/ _ \ / _ \| '_ \ '_ \| '__/ _ \/ __/ __|  / _' | | '_ ' _ \| | '_ \
| |_) | | | (_) | (_) | |_) | |_) | | |  __/\__ \__ \ | (_| | | | | | | | | | | |
|_.__/|_|  \___/ \___/ \__,_| .__/|_|  \___||___/___/  \__,_|_|_| |_| |_|_|_| |_|
                            |_|
`

// cliActor is recorded as the actor of every change made from this tool.
const cliActor = "cli"

// app bundles the services the commands operate on.
type app struct {
	keys     *admin.KeyService
	articles *admin.ArticleService
	audit    store.AuditStore
	out      io.Writer
}

func newApp(s *store.SQLiteStore, prefix string, out io.Writer) *app {
	keyring := auth.NewKeyring(s, auth.KeyringConfig{Prefix: prefix})
	return &app{
		keys:     admin.NewKeyService(keyring, s, nil),
		articles: admin.NewArticleService(s, nil),
		audit:    s,
		out:      out,
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		color.Red("Error: loading config: %v\n", err)
		os.Exit(1)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		color.Red("Error: opening database: %v\n", err)
		os.Exit(1)
	}

	err = run(ctx, newApp(s, cfg.Auth.TokenPrefix, os.Stdout), cmd, os.Args[2:])
	_ = s.Close()

	if errors.Is(err, errUnknownCommand) {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

var errUnknownCommand = errors.New("unknown command")

func run(ctx context.Context, a *app, cmd string, args []string) error {
	switch cmd {
	case "keys":
		return a.cmdKeys(ctx, args)
	case "articles":
		return a.cmdArticles(ctx, args)
	case "audit":
		return a.cmdAudit(ctx, args)
	default:
		return errUnknownCommand
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: broodpress-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  keys                                List API keys")
	fmt.Println("  keys create --name N [--permissions read,write,admin]")
	fmt.Println("                                      Issue a key (shown once)")
	fmt.Println("  keys revoke <id>                    Revoke a key permanently")
	fmt.Println("  keys delete <id>                    Delete a key")
	fmt.Println("  articles [--status s] [--limit n]   List articles")
	fmt.Println("  articles show <id> [--html]         Show an article")
	fmt.Println("  articles add --title T --file F [--topic T] [--image URL]")
	fmt.Println("                                      Add a draft from a markdown file (- for stdin)")
	fmt.Println("  articles approve <id> [--note N]    Approve a draft")
	fmt.Println("  articles reject <id> [--note N]     Reject a draft")
	fmt.Println("  articles reopen <id> [--note N]     Move a rejected article back to draft")
	fmt.Println("  articles publish <id> --url URL     Record where an approved article went live")
	fmt.Println("  audit [--limit n] [--action a]      Show the audit log")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  BROODPRESS_CONFIG        Config file path")
	fmt.Println("  BROODPRESS_DB_PATH       Database path (overrides config)")
	fmt.Println()
}

// flagArgs splits args into positional values and --flag values. Boolean
// flags listed in bools take no value.
func flagArgs(args []string, bools ...string) (positional []string, flags map[string]string, err error) {
	flags = make(map[string]string)
	isBool := make(map[string]bool, len(bools))
	for _, b := range bools {
		isBool[b] = true
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			positional = append(positional, arg)
			continue
		}

		name := strings.TrimPrefix(arg, "--")
		if k, v, ok := strings.Cut(name, "="); ok {
			flags[k] = v
			continue
		}
		if isBool[name] {
			flags[name] = "true"
			continue
		}
		if i+1 >= len(args) {
			return nil, nil, fmt.Errorf("--%s requires a value", name)
		}
		flags[name] = args[i+1]
		i++
	}
	return positional, flags, nil
}

// parseIntArg parses a string to int64
func parseIntArg(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// parseID parses a positive row ID.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen-3]) + "..."
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.Local().Format("Jan 02 15:04")
}

// ---- keys ----

func (a *app) cmdKeys(ctx context.Context, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return a.cmdKeysList(ctx)
	case "create", "add":
		return a.cmdKeysCreate(ctx, args)
	case "revoke":
		return a.cmdKeysRevoke(ctx, args)
	case "delete", "rm", "remove":
		return a.cmdKeysDelete(ctx, args)
	default:
		return fmt.Errorf("unknown keys subcommand: %s (use list, create, revoke, delete)", subcmd)
	}
}

func (a *app) cmdKeysList(ctx context.Context) error {
	keys, err := a.keys.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("listing keys: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(a.out)
	cyan.Fprintln(a.out, "  API Keys")
	cyan.Fprintln(a.out, "  --------")

	if len(keys) == 0 {
		fmt.Fprintln(a.out, "  (no keys)")
		fmt.Fprintln(a.out)
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tPERMISSIONS\tSTATUS\tCREATED\tLAST USED")
	fmt.Fprintln(w, "  --\t----\t-----------\t------\t-------\t---------")
	for _, k := range keys {
		status := "active"
		if !k.IsActive {
			status = "revoked"
		}
		created := k.CreatedAt
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\t%s\n",
			k.ID,
			truncate(k.Name, 24),
			k.Permissions,
			status,
			formatTime(&created),
			formatTime(k.LastUsedAt),
		)
	}
	w.Flush()
	fmt.Fprintln(a.out)
	return nil
}

func (a *app) cmdKeysCreate(ctx context.Context, args []string) error {
	_, flags, err := flagArgs(args)
	if err != nil {
		return err
	}
	name := flags["name"]
	if name == "" {
		return fmt.Errorf("usage: keys create --name <name> [--permissions read,write,admin]")
	}

	issued, err := a.keys.IssueKey(ctx, cliActor, name, admin.ParsePermissions(flags["permissions"]))
	if err != nil {
		return fmt.Errorf("issuing key: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	green.Fprintf(a.out, "✓ Created key: %d\n", issued.ID)
	fmt.Fprintf(a.out, "  Name:        %s\n", issued.Name)
	fmt.Fprintf(a.out, "  Permissions: %s\n", issued.Permissions)
	fmt.Fprintf(a.out, "  Key:         %s\n", issued.Token)
	yellow.Fprintln(a.out, "  Save this key now. It cannot be shown again.")
	return nil
}

func (a *app) cmdKeysRevoke(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: keys revoke <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	if err := a.keys.RevokeKey(ctx, cliActor, id); err != nil {
		return fmt.Errorf("revoking key %d: %w", id, err)
	}

	color.New(color.FgGreen).Fprintf(a.out, "✓ Revoked key: %d\n", id)
	return nil
}

func (a *app) cmdKeysDelete(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: keys delete <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	if err := a.keys.DeleteKey(ctx, cliActor, id); err != nil {
		return fmt.Errorf("deleting key %d: %w", id, err)
	}

	color.New(color.FgGreen).Fprintf(a.out, "✓ Deleted key: %d\n", id)
	return nil
}

// ---- articles ----

func (a *app) cmdArticles(ctx context.Context, args []string) error {
	subcmd := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "--") {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return a.cmdArticlesList(ctx, args)
	case "show", "get":
		return a.cmdArticlesShow(ctx, args)
	case "add", "create":
		return a.cmdArticlesAdd(ctx, args)
	case "approve":
		return a.cmdArticlesReview(ctx, admin.DecisionApprove, args)
	case "reject":
		return a.cmdArticlesReview(ctx, admin.DecisionReject, args)
	case "reopen":
		return a.cmdArticlesReview(ctx, admin.DecisionReopen, args)
	case "publish":
		return a.cmdArticlesPublish(ctx, args)
	default:
		return fmt.Errorf("unknown articles subcommand: %s (use list, show, add, approve, reject, reopen, publish)", subcmd)
	}
}

func (a *app) cmdArticlesList(ctx context.Context, args []string) error {
	_, flags, err := flagArgs(args)
	if err != nil {
		return err
	}

	filter := store.ArticleFilter{}
	if s := flags["status"]; s != "" {
		status := store.ArticleStatus(strings.ToLower(s))
		filter.Status = &status
	}
	if l := flags["limit"]; l != "" {
		n, err := parseIntArg(l)
		if err != nil {
			return fmt.Errorf("invalid --limit: %w", err)
		}
		filter.Limit = int(n)
	}

	articles, err := a.articles.ListArticles(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing articles: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(a.out)
	cyan.Fprintln(a.out, "  Articles")
	cyan.Fprintln(a.out, "  --------")

	if len(articles) == 0 {
		fmt.Fprintln(a.out, "  (no articles)")
		fmt.Fprintln(a.out)
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tSTATUS\tTITLE\tTOPIC\tUPDATED")
	fmt.Fprintln(w, "  --\t------\t-----\t-----\t-------")
	for _, art := range articles {
		updated := art.UpdatedAt
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\n",
			art.ID,
			art.Status,
			truncate(art.Title, 40),
			truncate(art.Topic, 20),
			formatTime(&updated),
		)
	}
	w.Flush()
	fmt.Fprintln(a.out)
	return nil
}

func (a *app) cmdArticlesShow(ctx context.Context, args []string) error {
	positional, flags, err := flagArgs(args, "html")
	if err != nil {
		return err
	}
	if len(positional) < 1 {
		return fmt.Errorf("usage: articles show <id> [--html]")
	}
	id, err := parseID(positional[0])
	if err != nil {
		return err
	}

	art, err := a.articles.GetArticle(ctx, id)
	if err != nil {
		return fmt.Errorf("getting article %d: %w", id, err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(a.out)
	cyan.Fprintf(a.out, "  %s\n", art.Title)
	cyan.Fprintln(a.out, "  "+strings.Repeat("-", utf8.RuneCountInString(art.Title)))
	fmt.Fprintf(a.out, "  ID:        %d\n", art.ID)
	fmt.Fprintf(a.out, "  Status:    %s\n", art.Status)
	if art.Topic != "" {
		fmt.Fprintf(a.out, "  Topic:     %s\n", art.Topic)
	}
	if art.FeaturedImageURL != "" {
		fmt.Fprintf(a.out, "  Image:     %s\n", art.FeaturedImageURL)
	}
	if art.ReviewNote != "" {
		fmt.Fprintf(a.out, "  Note:      %s\n", art.ReviewNote)
	}
	if art.PublishedURL != "" {
		fmt.Fprintf(a.out, "  Published: %s\n", art.PublishedURL)
	}
	fmt.Fprintln(a.out)

	if flags["html"] == "true" {
		fmt.Fprintln(a.out, content.RenderMarkdown(art.Body))
	} else {
		fmt.Fprintln(a.out, art.Body)
	}
	return nil
}

func (a *app) cmdArticlesAdd(ctx context.Context, args []string) error {
	_, flags, err := flagArgs(args)
	if err != nil {
		return err
	}
	if flags["title"] == "" || flags["file"] == "" {
		return fmt.Errorf("usage: articles add --title <title> --file <path|-> [--topic <topic>] [--image <url>]")
	}

	body, err := readBody(flags["file"])
	if err != nil {
		return err
	}

	art, err := a.articles.CreateDraft(ctx, cliActor, admin.DraftInput{
		Title:            flags["title"],
		Topic:            flags["topic"],
		Body:             body,
		FeaturedImageURL: flags["image"],
	})
	if err != nil {
		return fmt.Errorf("adding article: %w", err)
	}

	color.New(color.FgGreen).Fprintf(a.out, "✓ Added draft: %d\n", art.ID)
	fmt.Fprintf(a.out, "  Title:  %s\n", art.Title)
	return nil
}

// readBody reads a markdown file, or stdin for "-".
func readBody(path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func (a *app) cmdArticlesReview(ctx context.Context, decision admin.ReviewDecision, args []string) error {
	positional, flags, err := flagArgs(args)
	if err != nil {
		return err
	}
	if len(positional) < 1 {
		return fmt.Errorf("usage: articles %s <id> [--note <note>]", decision)
	}
	id, err := parseID(positional[0])
	if err != nil {
		return err
	}

	art, err := a.articles.Review(ctx, cliActor, id, decision, flags["note"])
	if err != nil {
		return fmt.Errorf("reviewing article %d: %w", id, err)
	}

	color.New(color.FgGreen).Fprintf(a.out, "✓ Article %d is now %s\n", art.ID, art.Status)
	return nil
}

func (a *app) cmdArticlesPublish(ctx context.Context, args []string) error {
	positional, flags, err := flagArgs(args)
	if err != nil {
		return err
	}
	if len(positional) < 1 || flags["url"] == "" {
		return fmt.Errorf("usage: articles publish <id> --url <url>")
	}
	id, err := parseID(positional[0])
	if err != nil {
		return err
	}

	art, err := a.articles.MarkPublished(ctx, cliActor, id, flags["url"])
	if err != nil {
		return fmt.Errorf("publishing article %d: %w", id, err)
	}

	color.New(color.FgGreen).Fprintf(a.out, "✓ Article %d published at %s\n", art.ID, art.PublishedURL)
	return nil
}

// ---- audit ----

func (a *app) cmdAudit(ctx context.Context, args []string) error {
	_, flags, err := flagArgs(args)
	if err != nil {
		return err
	}

	filter := store.AuditFilter{Limit: 50}
	if l := flags["limit"]; l != "" {
		n, err := parseIntArg(l)
		if err != nil {
			return fmt.Errorf("invalid --limit: %w", err)
		}
		filter.Limit = int(n)
	}
	if act := flags["action"]; act != "" {
		action := store.AuditAction(act)
		filter.Action = &action
	}

	entries, err := a.audit.ListAuditLog(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing audit log: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(a.out)
	cyan.Fprintln(a.out, "  Audit Log")
	cyan.Fprintln(a.out, "  ---------")

	if len(entries) == 0 {
		fmt.Fprintln(a.out, "  (no entries)")
		fmt.Fprintln(a.out)
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tACTOR\tACTION\tTARGET")
	fmt.Fprintln(w, "  ----\t-----\t------\t------")
	for _, e := range entries {
		ts := e.Timestamp
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s:%s\n",
			formatTime(&ts),
			truncate(e.Actor, 20),
			e.Action,
			e.TargetType,
			e.TargetID,
		)
	}
	w.Flush()
	fmt.Fprintln(a.out)
	return nil
}
