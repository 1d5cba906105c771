// ORBI Daemon - the robot companion backend
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orbi-bot/orbi/internal/actions"
	"github.com/orbi-bot/orbi/internal/api"
	"github.com/orbi-bot/orbi/internal/chat"
	"github.com/orbi-bot/orbi/internal/config"
	"github.com/orbi-bot/orbi/internal/extension"
	_ "github.com/orbi-bot/orbi/internal/extension/builtin"
	"github.com/orbi-bot/orbi/internal/github"
	"github.com/orbi-bot/orbi/internal/llm"
	"github.com/orbi-bot/orbi/internal/logging"
	"github.com/orbi-bot/orbi/internal/memory"
	"github.com/orbi-bot/orbi/internal/requests"
)

var (
	dataDir  string
	port     int
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "orbi",
		Short: "ORBI Daemon - Your robot companion",
		RunE:  runDaemon,
	}

	home, _ := os.UserHomeDir()
	defaultDataDir := filepath.Join(home, ".orbi")

	rootCmd.Flags().StringVar(&dataDir, "data-dir", defaultDataDir, "Data directory")
	rootCmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides settings.json)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	fmt.Println("🤖 Starting ORBI...")

	logging.SetLevel(logging.ParseLevel(logLevel))

	cfg := config.Load(dataDir)
	if port != 0 {
		cfg.Server.Port = port
	}

	if err := os.MkdirAll(cfg.ExtensionsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// LLM client
	llmClient := llm.NewClient(llm.Config{
		APIKey:    cfg.Claude.APIKey,
		Model:     cfg.Claude.Model,
		MaxTokens: cfg.Limits.MaxResponseTokens,
	})
	if !llmClient.IsConfigured() {
		fmt.Println("⚠️  Claude API key not set - chat will be limited")
	} else {
		fmt.Println("✅ Claude API configured")
	}

	// GitHub client for extension requests
	var ghClient *github.Client
	if token := cfg.GitHubToken(); token != "" && cfg.GitHub.Owner != "" {
		ghClient = github.NewClient(github.Config{Token: token, Owner: cfg.GitHub.Owner, Repo: cfg.GitHub.Repo})
		fmt.Printf("✅ GitHub configured: %s/%s\n", cfg.GitHub.Owner, cfg.GitHub.Repo)
	} else {
		fmt.Println("⚠️  GitHub not configured - extension requests disabled")
	}

	// Stores
	mem := memory.NewStore(dataDir, cfg.Limits.MaxMemories)
	reqLog := requests.NewLog(requests.Config{
		DataDir:        dataDir,
		ExtensionsDir:  cfg.ExtensionsDir(),
		GitHub:         ghClient,
		FeatureEnabled: cfg.Features.ExtensionCreationEnabled,
		ChildName:      cfg.ChildName(),
	})
	versionStore := extension.NewVersionStore(cfg.ExtensionsDir())

	// WebSocket hub first; extensions broadcast through it.
	hub := api.NewHub()

	registry := extension.NewRegistry(cfg.ExtensionsDir(), extension.APIDeps{
		Config:      cfg,
		Memory:      mem,
		Broadcaster: hub,
		Asker:       llmClient,
	})
	exts, err := registry.Discover()
	if err != nil {
		return fmt.Errorf("extension discovery failed: %w", err)
	}
	fmt.Printf("🧩 Loaded %d extensions\n", len(exts))

	// Chat loop
	dispatcher := actions.NewDispatcher(mem, registry, versionStore, reqLog, chat.NewJokeBox(registry), hub)
	prompt := &chat.PromptBuilder{
		Config:   cfg,
		Memory:   mem,
		Registry: registry,
		Requests: reqLog,
	}
	chatService := chat.NewService(llmClient, chat.NewConversations(dataDir, cfg.Limits.MaxConversationMessages), prompt, dispatcher)

	server := api.New(api.Config{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		Config:   cfg,
		Registry: registry,
		Versions: versionStore,
		Memory:   mem,
		Requests: reqLog,
		Chat:     chatService,
		Hub:      hub,
	})

	// Handle shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\n🛑 Shutting down...")
		registry.StopAll()
		server.Stop(context.Background())
	}()

	fmt.Printf("🌐 Open http://%s:%d in your browser\n", cfg.Server.Host, cfg.Server.Port)
	return server.Start()
}
