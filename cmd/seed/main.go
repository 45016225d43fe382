// Package main provides a utility to seed test data for development.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/clanhall/authcore/internal/domain"
	"github.com/clanhall/authcore/internal/store/sqlite"
)

func main() {
	dbPath := flag.String("db", "./data/authcore.db", "SQLite database path")
	flag.Parse()

	// Initialize store
	st, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()

	// Create test users, each pretending to come from a provider exchange.
	users := []*domain.User{
		{
			Subject: "google:" + uuid.New().String(),
			Email:   "test@example.com",
			Name:    "Test User",
		},
		{
			Subject: "apple:" + uuid.New().String(),
			Email:   "second@example.com",
			Name:    "Second User",
		},
	}

	for _, user := range users {
		if err := st.Users().Create(ctx, user); err != nil {
			fmt.Printf("User may already exist: %v\n", err)
		} else {
			fmt.Printf("Created user %d: %s (%s)\n", user.ID, user.Email, user.Subject)
		}
	}

	// Seed placeholder issuer metadata so dependent services reading the
	// shared config store have something to resolve before first startup.
	entries := []*domain.SharedConfigEntry{
		{Key: domain.ConfigKeyIssuer, Value: "http://localhost:8080", Description: "Token issuer URL"},
		{Key: domain.ConfigKeyAudience, Value: "clanhall-api", Description: "Expected token audience"},
	}

	for _, entry := range entries {
		entry.UpdatedAt = time.Now()
		if err := st.SharedConfig().Upsert(ctx, entry); err != nil {
			log.Fatalf("Failed to seed config entry %s: %v", entry.Key, err)
		}
		fmt.Printf("Seeded config: %s\n", entry.Key)
	}

	fmt.Println("\nSeed data created successfully!")
	fmt.Println("\nTest with:")
	fmt.Println("  1. Start server: go run ./cmd/authd")
	fmt.Println("  2. Fetch keys:   curl http://localhost:8080/oauth2/jwks.json")

	os.Exit(0)
}
