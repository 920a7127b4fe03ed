// Command devtoken mints an access token for local testing of the writing
// API. It reads the same configuration as the server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/service/auth"
)

func main() {
	userFlag := flag.String("user", "", "user id to embed in the token (random when empty)")
	lifetime := flag.Duration("lifetime", time.Hour, "token lifetime, rounded to whole minutes")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to read .env: %v", err)
	}

	secret := os.Getenv(config.EnvPrefix + "_AUTH_JWT_SECRET")
	if secret == "" {
		log.Fatalf("%s_AUTH_JWT_SECRET must be set", config.EnvPrefix)
	}

	userID := uuid.New()
	if *userFlag != "" {
		id, err := uuid.Parse(*userFlag)
		if err != nil {
			log.Fatalf("invalid user id: %v", err)
		}
		userID = id
	}

	minutes := max(1, int(lifetime.Round(time.Minute)/time.Minute))

	svc, err := auth.NewJWTService(config.AuthConfig{JWTSecret: secret, TokenLifetimeMinutes: minutes})
	if err != nil {
		log.Fatalf("failed to create JWT service: %v", err)
	}
	token, err := svc.GenerateToken(context.Background(), userID)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}

	fmt.Printf("user:  %s\ntoken: %s\n", userID, token)
}
