// ABOUTME: Entry point for the broodpress API server
// ABOUTME: Serves the article API and handles first-time setup of config and the first API key

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/broodpress/internal/admin"
	"github.com/2389/broodpress/internal/auth"
	"github.com/2389/broodpress/internal/config"
	"github.com/2389/broodpress/internal/server"
	"github.com/2389/broodpress/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
 _                     _
| |__  _ __ ___   ___ | |_ __  _ __ ___  ___ ___
| '_ \| '__/ _ \ / _ \| '_ \ '_ \| '__/ _ \/ __/ __|
| |_) | | | (_) | (_) | |_) | |_) | | |  __/\__ \__ \
|_.__/|_|  \___/ \___/ \__,_| .__/|_|  \___||___/___/
                            |_|
`

// bootstrapActor is the audit actor for keys created by the bootstrap command.
const bootstrapActor = "cli"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: broodpress <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the API server")
		fmt.Println("  init                   Create a new config file interactively")
		fmt.Println("  bootstrap --name NAME  Issue the first admin API key")
		fmt.Println("  health                 Check server health")
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
	case "bootstrap":
		err = runBootstrap(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
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
	configPath := config.Path()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	if cfg.Auth.Disabled {
		yellow.Print("    ! ")
		yellow.Println("Authentication disabled (development mode)")
	}
	fmt.Println()

	logger.Info("starting broodpress",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"auth_disabled", cfg.Auth.Disabled,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, cfg.Auth.HealthPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// parseNameFlag accepts "--name value", "--name=value" and the -n forms.
func parseNameFlag(args []string) (string, error) {
	var name string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--name" || arg == "-n":
			if i+1 >= len(args) {
				return "", errors.New("--name requires a value")
			}
			name = args[i+1]
			i++
		case strings.HasPrefix(arg, "--name="):
			name = strings.TrimPrefix(arg, "--name=")
		case strings.HasPrefix(arg, "-n="):
			name = strings.TrimPrefix(arg, "-n=")
		case strings.HasPrefix(arg, "-"):
			return "", fmt.Errorf("unknown flag: %s", arg)
		default:
			return "", fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if strings.TrimSpace(name) == "" {
		return "", errors.New("--name flag is required")
	}
	return strings.TrimSpace(name), nil
}

// runBootstrap issues the first key, with read, write and admin permissions.
// It refuses to run once any key exists.
func runBootstrap(ctx context.Context, args []string) error {
	name, err := parseNameFlag(args)
	if err != nil {
		return err
	}

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	keyring := auth.NewKeyring(s, auth.KeyringConfig{Prefix: cfg.Auth.TokenPrefix})
	keys := admin.NewKeyService(keyring, s, nil)

	issued, err := keys.Bootstrap(ctx, bootstrapActor, name)
	if errors.Is(err, admin.ErrKeysExist) {
		return errors.New("bootstrap already complete: API keys exist (use broodpress-admin keys create)")
	}
	if err != nil {
		return fmt.Errorf("issuing key: %w", err)
	}

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  API Key")
	cyan.Println("  -------")
	fmt.Printf("  ID:          %d\n", issued.ID)
	fmt.Printf("  Name:        %s\n", issued.Name)
	fmt.Printf("  Permissions: %s\n", issued.Permissions)
	fmt.Printf("  Key:         %s\n", issued.Token)
	fmt.Println()
	yellow.Println("  Save this key now. It cannot be shown again.")
	fmt.Println()
	fmt.Println("    broodpress serve")
	fmt.Printf("    curl -H 'Authorization: Bearer %s' http://%s/api/me\n", issued.Token, cfg.Server.HTTPAddr)
	fmt.Println()

	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("broodpress configuration setup")
	fmt.Println("==============================")
	fmt.Println()

	defaults := config.Default()

	outputFile := prompt(reader, "Config file path", config.Path())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.Default()

	fmt.Println("\n--- Server Configuration ---")
	cfg.Server.HTTPAddr = prompt(reader, "HTTP address", defaults.Server.HTTPAddr)

	fmt.Println("\n--- Database Configuration ---")
	cfg.Database.Path = prompt(reader, "SQLite database path", defaults.Database.Path)

	fmt.Println("\n--- Authentication ---")
	cfg.Auth.TokenPrefix = prompt(reader, "API key prefix", defaults.Auth.TokenPrefix)

	fmt.Println("\n--- Logging Configuration ---")
	cfg.Logging.Level = prompt(reader, "Log level (debug/info/warn/error)", defaults.Logging.Level)
	cfg.Logging.Format = prompt(reader, "Log format (text/json)", defaults.Logging.Format)

	fmt.Println("\n--- Metrics ---")
	cfg.Metrics.Enabled = isYes(prompt(reader, "Expose Prometheus metrics?", "yes"))

	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	data = append([]byte("# broodpress configuration\n# Generated by broodpress init\n\n"), data...)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nNext steps:")
	fmt.Println("  broodpress bootstrap --name \"Your Name\"")
	fmt.Println("  broodpress serve")

	return nil
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
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
