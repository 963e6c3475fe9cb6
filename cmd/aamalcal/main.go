package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"golang.org/x/term"

	"github.com/zakhtar8/aamalcalendar/internal/config"
	"github.com/zakhtar8/aamalcalendar/internal/dataset"
	appLog "github.com/zakhtar8/aamalcalendar/internal/log"
	"github.com/zakhtar8/aamalcalendar/internal/prayer"
	"github.com/zakhtar8/aamalcalendar/internal/web"
)

// flagConfig holds parsed CLI flag values.
type flagConfig struct {
	configPath  string
	listen      string
	datasetPath string
	dump        bool
	debug       bool
}

func main() {
	// Subcommands before flag parsing, abfall-kalender style.
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		hashPassword()
		return
	}

	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	appLog.Info("aamalcal starting", "version", "1.1.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI overrides.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.datasetPath != "" {
		conf.Dataset = flags.datasetPath
	}

	ds, err := dataset.Load(conf.Dataset)
	if err != nil {
		// A broken dataset leaves the calendar empty rather than crashing,
		// unless there is literally nothing to serve.
		appLog.Error("failed to load dataset", err, "path", conf.Dataset)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"location", conf.Location.Name,
		"refresh", conf.RefreshCron,
		"anchored_months", len(conf.Anchors),
		"rules", len(ds.Rules),
	)

	calc := prayer.Calculator{FajrAngle: conf.FajrAngle}
	server := web.NewServer(conf, flags.configPath, ds, calc)

	if flags.dump {
		// One-shot mode: expand once, print events as JSON, exit.
		_, resp := server.Refresh()
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			appLog.Error("failed to encode schedule dump", err)
			os.Exit(1)
		}
		return
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	// Periodic cache refresh: day-period events carry that day's dawn/dusk
	// instants, so a long-running instance must roll the cache over.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(conf.RefreshCron, func() {
		appLog.Debug("scheduled schedule refresh")
		server.Refresh()
	}); err != nil {
		appLog.Error("invalid refresh cron expression", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Warm the cache so the first page load is instant.
	server.Refresh()

	if err := web.StartServer(ctx, server, conf.Listen); err != nil {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}

	appLog.Info("aamalcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/aamalcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.datasetPath, "dataset", "", "Path to rule dataset JSON (overrides config if set)")
	flag.BoolVar(&cfg.dump, "dump", false, "Expand the schedule once, print JSON to stdout and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

// hashPassword prompts for a password and prints an Argon2id hash suitable
// for the basic_auth.password_hash config field.
func hashPassword() {
	fmt.Fprint(os.Stderr, "Enter password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprint(os.Stderr, "Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
		os.Exit(1)
	}

	if len(pw) == 0 {
		fmt.Fprintln(os.Stderr, "Password cannot be empty")
		os.Exit(1)
	}
	if string(pw) != string(confirm) {
		fmt.Fprintln(os.Stderr, "Passwords do not match")
		os.Exit(1)
	}

	hash, err := web.HashPassword(string(pw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
