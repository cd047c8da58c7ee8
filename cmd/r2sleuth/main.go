package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"r2sleuth/internal/agent"
	"r2sleuth/internal/config"
	"r2sleuth/internal/credentials"
	"r2sleuth/internal/logging"
	"r2sleuth/internal/openai"
	"r2sleuth/internal/prompts"
	"r2sleuth/internal/r2"
	"r2sleuth/internal/script"
	"r2sleuth/internal/sessionlog"
)

// Version is set via -ldflags during build
var Version = "dev"

const usageText = `Usage: r2sleuth [flags] <binary> [instruction...]

Opens <binary> in radare2 and drives an autonomous analysis session.
When no instruction is given the agent starts with: %q

Flags:
`

func main() {
	var (
		modelFlag   = flag.String("model", "", "Override the configured model")
		baseURLFlag = flag.String("base-url", "", "Override the API base URL")
		noThinking  = flag.Bool("no-thinking", false, "Disable the reasoning-budget request parameter")
		setupFlag   = flag.Bool("setup", false, "Write a credentials file template and exit")
		versionFlag = flag.Bool("version", false, "Print version and exit")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, usageText, prompts.DefaultInstruction)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *versionFlag {
		fmt.Printf("r2sleuth version %s\n", Version)
		return
	}

	credManager := credentials.NewManager()

	if *setupFlag {
		if err := credManager.Save(&credentials.Credentials{APIKey: "sk-..."}); err != nil {
			log.Fatalf("Failed to write credentials template: %v", err)
		}
		fmt.Printf("Credentials template written to %s\n", credManager.Path())
		fmt.Println("Edit it and set your API key, or export OPENAI_API_KEY.")
		return
	}

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	targetFile := flag.Arg(0)
	instruction := strings.TrimSpace(strings.Join(flag.Args()[1:], " "))
	if instruction == "" {
		instruction = prompts.DefaultInstruction
	}

	if _, err := os.Stat(targetFile); err != nil {
		log.Fatalf("Cannot access target file %q: %v", targetFile, err)
	}

	creds, err := credManager.Load()
	if err != nil {
		if errors.Is(err, credentials.ErrMissingAPIKey) {
			log.Fatalf("No API key configured. Run r2sleuth --setup or export OPENAI_API_KEY.")
		}
		log.Fatalf("Failed to load credentials: %v", err)
	}

	cfg, err := config.LoadUserConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *modelFlag != "" {
		cfg.Model = *modelFlag
	}
	if *baseURLFlag != "" {
		cfg.BaseURL = *baseURLFlag
	}
	if creds.BaseURL != "" && *baseURLFlag == "" {
		cfg.BaseURL = creds.BaseURL
	}
	if *noThinking {
		cfg.DisableThinking = true
	}

	// Rotating log file under the config dir; stdout stays clean for the
	// session transcript.
	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}
	logging.SetOutput(&lumberjack.Logger{
		Filename:   cfg.LogPath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	})

	session, err := r2.Open(targetFile)
	if err != nil {
		log.Fatalf("Failed to open %q in radare2: %v", targetFile, err)
	}
	defer session.Close()

	var sessions *sessionlog.Store
	if store, err := sessionlog.Open(cfg.SessionLogPath); err != nil {
		logging.ErrorLog("session log unavailable: %v", err)
	} else {
		sessions = store
		defer sessions.Close()
	}

	client := openai.NewClient(cfg.BaseURL, creds.APIKey, logging.Logger)
	executor := script.NewExecutor(session)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.UserLog("received shutdown signal, stopping")
		cancel()
	}()

	fmt.Printf("r2sleuth %s — analyzing %s (model %s)\n", Version, targetFile, cfg.Model)

	a := agent.New(client, cfg, session, executor, agent.Options{Sessions: sessions})
	if err := a.Run(ctx, session.File(), instruction); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("Interrupted.")
			return
		}
		log.Fatalf("Session failed: %v", err)
	}
}
