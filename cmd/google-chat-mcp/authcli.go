package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/chy168/google-chat-mcp-server/internal/auth"
	"github.com/chy168/google-chat-mcp-server/internal/config"
	"github.com/chy168/google-chat-mcp-server/internal/logging"
)

// runCLIAuth performs the headless authorization flow: print the consent
// URL, let the user complete it in any browser, and exchange the pasted
// redirect URL for tokens. Useful when the callback server cannot be
// reached from the browser's machine.
func runCLIAuth() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Environment, slog.LevelWarn)

	store := auth.NewTokenStore(cfg.TokenPath)
	manager := auth.NewCredentialManager(store, cfg.CredentialsPath, logger)

	ctx := context.Background()

	// Short-circuit when valid credentials already exist.
	cred, err := manager.GetCredential(ctx)
	if err != nil {
		return err
	}
	if cred != nil {
		fmt.Println("Valid credentials already exist.")
		fmt.Printf("Token file: %s\n", store.Path())
		return nil
	}

	if _, err := os.Stat(cfg.CredentialsPath); err != nil {
		fmt.Printf("ERROR: %s not found.\n", cfg.CredentialsPath)
		fmt.Println("Download it from the Google Cloud Console and save it there.")
		return err
	}

	coordinator := auth.NewCoordinator(manager, logger)
	defer coordinator.Stop()

	redirectURI := cfg.DefaultRedirectURI()

	authURL, _, err := coordinator.Begin(redirectURI)
	if err != nil {
		return err
	}

	divider := strings.Repeat("=", 60)
	fmt.Println()
	fmt.Println(divider)
	fmt.Println("AUTHORIZATION REQUIRED")
	fmt.Println(divider)
	fmt.Println()
	fmt.Println("1. Open this URL in a browser (can be on another device):")
	fmt.Println()
	fmt.Printf("   %s\n\n", authURL)
	fmt.Println("2. Complete the authorization flow")
	fmt.Println("3. You will be redirected to a localhost URL that may fail to load")
	fmt.Println("4. Copy the FULL URL from your browser's address bar")
	fmt.Printf("   (It will look like: %s?code=...&scope=...)\n", redirectURI)
	fmt.Println()
	fmt.Println(divider)

	fmt.Print("\nPaste the full redirect URL here: ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return fmt.Errorf("no input")
	}

	redirectURL := strings.TrimSpace(scanner.Text())
	if redirectURL == "" {
		return fmt.Errorf("no URL provided")
	}

	fmt.Println("\nExchanging authorization code for credentials...")

	cred, err = coordinator.CompleteFromRedirectURL(ctx, redirectURL)
	if err != nil {
		return fmt.Errorf("failed to complete authorization: %w", err)
	}

	fmt.Println()
	fmt.Println(divider)
	fmt.Println("SUCCESS!")
	fmt.Println(divider)
	fmt.Printf("Token saved to: %s\n", store.Path())
	fmt.Printf("Expires at: %s\n", cred.Expiry)
	fmt.Printf("Has refresh token: %v\n", cred.CanRefresh())

	return nil
}
