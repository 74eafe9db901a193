package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chy168/google-chat-mcp-server/internal/auth"
	"github.com/chy168/google-chat-mcp-server/internal/chat"
	"github.com/chy168/google-chat-mcp-server/internal/config"
	"github.com/chy168/google-chat-mcp-server/internal/logging"
	"github.com/chy168/google-chat-mcp-server/internal/mcpserver"
	"github.com/chy168/google-chat-mcp-server/internal/server"
)

var Version = "dev"

func main() {
	// Handle the auth subcommand before flag parsing.
	if len(os.Args) > 1 && os.Args[1] == "auth" {
		if err := runCLIAuth(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	// Flags override environment for the settings people change most.
	flag.StringVar(&cfg.TokenPath, "token-path", cfg.TokenPath, "path to the OAuth token file")
	flag.StringVar(&cfg.CredentialsPath, "credentials-path", cfg.CredentialsPath, "path to the Google client secrets file")
	flag.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "HTTP listen address")
	flag.StringVar(&cfg.RedirectURI, "redirect-uri", cfg.RedirectURI, "OAuth redirect URI override")
	flag.Parse()

	return cfg, nil
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Environment, logging.ParseLevel(cfg.LogLevel))

	store := auth.NewTokenStore(cfg.TokenPath)
	manager := auth.NewCredentialManager(store, cfg.CredentialsPath, logger)

	coordinator := auth.NewCoordinator(manager, logger)
	defer coordinator.Stop()

	chatClient := chat.NewClient(chat.ClientConfig{
		Manager: manager,
		Logger:  logger,
		Compact: cfg.CompactMessages,
	})

	// MCP server setup.
	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "google-chat-mcp", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, chatClient)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	mux := server.NewMux(server.MuxConfig{
		Coordinator: coordinator,
		Manager:     manager,
		RedirectURI: cfg.DefaultRedirectURI(),
		MCPHandler:  mcpHandler,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Signal handling for graceful shutdown: stop accepting new
	// callbacks, let in-flight exchanges finish.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server",
		slog.String("listen", cfg.ListenAddr),
		slog.String("token_path", cfg.TokenPath),
		slog.String("redirect_uri", cfg.DefaultRedirectURI()),
	)

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
