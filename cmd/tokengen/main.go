// Package main provides a CLI tool for issuing warden bearer tokens and
// generating signing secrets for local development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"warden/internal/auth/models"
	"warden/internal/auth/token"
	"warden/pkg/secrets"
)

// devSigningKey matches the config fallback when JWT_SIGNING_KEY is unset.
const devSigningKey = "dev-secret-key-change-in-production"

type tokenOutput struct {
	Token     string    `json:"token"`
	Type      string    `json:"type"`
	Subject   string    `json:"sub,omitempty"`
	TokenID   string    `json:"jti,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "issue":
		issueCmd := flag.NewFlagSet("issue", flag.ExitOnError)
		accountID := issueCmd.String("account", "", "Account ID to issue the token for (required)")
		ttl := issueCmd.Duration("ttl", token.DefaultTTL, "Token time-to-live")
		issuer := issueCmd.String("issuer", token.DefaultIssuer, "Issuer claim")
		key := issueCmd.String("key", envOr("JWT_SIGNING_KEY", devSigningKey), "HS256 signing key")
		jsonOut := issueCmd.Bool("json", false, "Output as JSON")
		_ = issueCmd.Parse(os.Args[2:])

		tok, err := issue(*key, *issuer, *accountID, *ttl)
		if err != nil {
			fail(err)
		}
		if *jsonOut {
			printJSON(tokenOutput{
				Token:     tok.Value,
				Type:      "Bearer",
				Subject:   tok.Subject,
				TokenID:   tok.ID,
				ExpiresAt: tok.ExpiresAt,
			})
			return
		}
		fmt.Printf("Subject:    %s\n", tok.Subject)
		fmt.Printf("Token ID:   %s\n", tok.ID)
		fmt.Printf("Expires At: %s\n\n", tok.ExpiresAt.Format(time.RFC3339))
		fmt.Println(tok.Value)
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/auth/me")

	case "secret":
		secret, err := secrets.Generate()
		if err != nil {
			fail(err)
		}
		fmt.Println(secret)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func issue(key, issuer, accountID string, ttl time.Duration) (*models.Token, error) {
	accountID = models.NormalizeAccountID(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("-account is required")
	}
	svc, err := token.New(key, token.WithIssuer(issuer), token.WithTTL(ttl))
	if err != nil {
		return nil, err
	}
	return svc.Issue(context.Background(), accountID, ttl)
}

func printUsage() {
	fmt.Println(`tokengen - issue warden bearer tokens for local development

Usage:
  tokengen <command> [flags]

Commands:
  issue     Sign a token for an account (uses JWT_SIGNING_KEY or the dev key)
  secret    Print a random signing key suitable for JWT_SIGNING_KEY

Examples:
  tokengen issue -account alice@example.com
  tokengen issue -account alice@example.com -ttl 5m -json
  tokengen secret`)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fail(err)
	}
}
