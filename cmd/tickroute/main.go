package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/tickroute/internal/api"
	"github.com/mattjoyce/tickroute/internal/auth"
	"github.com/mattjoyce/tickroute/internal/config"
	"github.com/mattjoyce/tickroute/internal/doctor"
	"github.com/mattjoyce/tickroute/internal/events"
	"github.com/mattjoyce/tickroute/internal/lock"
	"github.com/mattjoyce/tickroute/internal/log"
	"github.com/mattjoyce/tickroute/internal/route"
	"github.com/mattjoyce/tickroute/internal/scheduler"
	"github.com/mattjoyce/tickroute/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// errTimerFinished ends the run group once the timer has exhausted its repeat count.
var errTimerFinished = errors.New("timer finished")

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)

	case "start":
		return runStart(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: tickroute version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("tickroute %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}

	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`tickroute - runs one timer-driven route

Usage:
  tickroute <noun> <action> [flags]

System Commands:
  system start      Start the timer route in foreground
  system watch      Live view of a running instance (needs the API)

Config Commands:
  config check      Validate configuration
  config show       Print the resolved configuration

General:
  version           Show version information
  help              Show this help message

Use 'tickroute <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: tickroute system <start|watch> [flags]")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: tickroute config <check|show> [flags]")
}

func printSystemStartHelp() {
	fmt.Println("Usage: tickroute system start [--config PATH]")
	fmt.Println("Run the timer route until interrupted or its repeat count is reached.")
	fmt.Println("Without --config, $TICKROUTE_CONFIG, ~/.config/tickroute/config.yaml and ./config.yaml are tried,")
	fmt.Println("then the built-in defaults (100ms fixed-rate timer logging fieldTwo).")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: tickroute system watch [flags]")
	fmt.Println()
	fmt.Println("Live view of a running instance: timer state, calls and recent observations.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    API URL (default: http://localhost:8080)")
	fmt.Println("  --api-key KEY    API Bearer Token (or TICKROUTE_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: tickroute config check [--config PATH] [--json] [--strict]")
	fmt.Println("Validate configuration syntax and semantics, and report likely mistakes.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: tickroute config show [--config PATH] [--json]")
	fmt.Println("Show the resolved configuration, defaults applied.")
}

// --- ACTION IMPLEMENTATIONS ---

// loadConfig loads configPath, or the discovered config file when it is empty.
// With nothing to discover the built-in defaults are used.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigFile()
		if err != nil {
			fmt.Fprintln(os.Stderr, "No config found, using built-in defaults")
			return config.Parse(nil)
		}
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", discovered)
		configPath = discovered
	}
	return config.Load(configPath)
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	strict := fs.Bool("strict", false, "Treat warnings as errors")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	var result *doctor.Result
	cfg, err := loadConfig(*configPath)
	if err != nil {
		result = &doctor.Result{Errors: []doctor.Issue{{Category: "load", Message: err.Error()}}}
	} else {
		result = doctor.New(cfg).Validate()
	}

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
		if cfg != nil && cfg.Hash != "" {
			fmt.Printf("blake3: %s\n", cfg.Hash)
		}
	}

	if !result.Valid || (*strict && len(result.Warnings) > 0) {
		return 1
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Println(string(data))
	} else {
		data, _ := yaml.Marshal(cfg)
		fmt.Print(string(data))
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://localhost:8080", "API URL")
	apiKey := fs.String("api-key", os.Getenv("TICKROUTE_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or TICKROUTE_API_KEY env var.")
		return 1
	}

	m := watch.New(strings.TrimRight(*apiURL, "/"), *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg)
}

// run drives one route until ctx is cancelled, the timer exhausts its repeat
// count, or a component fails. The timer is stopped and the PID lock released
// on every return path.
func run(ctx context.Context, cfg *config.Config) int {
	runID := uuid.NewString()
	runLogger := log.WithRun(runID)
	logger := log.WithComponent("main").With(slog.String("run_id", runID))

	period, err := cfg.Timer.Period()
	if err != nil {
		logger.Error("invalid timer period", "every", cfg.Timer.Every, "error", err)
		return 1
	}
	delay, err := cfg.Timer.InitialDelay()
	if err != nil {
		logger.Error("invalid timer delay", "delay", cfg.Timer.Delay, "error", err)
		return 1
	}
	timeout, err := cfg.Timer.TickTimeout()
	if err != nil {
		logger.Error("invalid tick timeout", "timeout", cfg.Timer.Timeout, "error", err)
		return 1
	}

	logger.Info("tickroute starting",
		"version", version,
		"config", cfg.SourcePath,
		"config_hash", cfg.Hash,
	)

	pidLock, err := lock.AcquirePIDLock(cfg.State.LockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.State.LockPath, "error", err)
		return 1
	}
	defer func() {
		if err := pidLock.Release(); err != nil {
			logger.Warn("failed to release PID lock", "path", pidLock.Path(), "error", err)
		}
	}()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	hub := events.NewHub(256)

	rt := route.New(route.Config{
		Name:    cfg.Route.Name,
		Fields:  cfg.Route.Fields,
		Observe: cfg.Route.Observe,
	}, hub, runLogger)

	timer := scheduler.New(scheduler.Config{
		Name:        cfg.Timer.Name,
		Period:      period,
		Delay:       delay,
		FixedRate:   cfg.Timer.FixedRate,
		RepeatCount: cfg.Timer.RepeatCount,
		Timeout:     timeout,
	}, rt, hub, runLogger)

	if err := timer.Start(ctx); err != nil {
		logger.Error("failed to arm timer", "timer", cfg.Timer.Name, "error", err)
		return 1
	}
	defer timer.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-timer.Done():
			if ctx.Err() != nil {
				return nil
			}
			return errTimerFinished
		case <-gctx.Done():
			return nil
		}
	})

	if cfg.API.Enabled {
		tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
		for _, t := range cfg.API.Auth.Tokens {
			tokens = append(tokens, auth.TokenConfig{
				Token:  t.Token,
				Scopes: t.Scopes,
			})
		}
		apiServer := api.New(api.Config{
			Listen:     cfg.API.Listen,
			APIKey:     cfg.API.Auth.APIKey,
			Tokens:     tokens,
			RunID:      runID,
			ConfigHash: cfg.Hash,
		}, timer, rt, hub, log.WithComponent("api").With(slog.String("run_id", runID)))

		g.Go(func() error {
			if err := apiServer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("tickroute running (press Ctrl+C to stop)",
		"timer", cfg.Timer.Name,
		"route", cfg.Route.Name,
		"period", period,
	)

	code := 0
	switch err := g.Wait(); {
	case err == nil:
		logger.Info("received shutdown signal")
	case errors.Is(err, errTimerFinished):
		logger.Info("timer finished", "ticks", timer.Fired())
	default:
		logger.Error("component failed", "error", err)
		code = 1
	}

	timer.Stop()
	logger.Info("tickroute stopped", "calls", rt.Calls(), "failed_ticks", timer.Failed())

	if cfg.SourcePath != "" {
		if err := cfg.VerifyFileHash(); err != nil {
			logger.Warn("config changed while running; restart to apply", "error", err)
		}
	}
	return code
}
