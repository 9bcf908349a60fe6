package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"ride-share/internal/ride-service/domain"
	"ride-share/pkg/auth"
	"ride-share/pkg/config"
)

func main() {
	userID := flag.String("user", "550e8400-e29b-41d4-a716-446655440000", "User ID")
	username := flag.String("name", "", "Display name")
	role := flag.String("role", string(domain.RolePassenger), "Role (passenger|driver|admin)")
	ttl := flag.Duration("ttl", 0, "Token lifetime (defaults to JWT_TOKEN_TTL)")
	flag.Parse()

	cfg, err := config.LoadConfig(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	id := domain.Identity{ID: *userID, Username: *username, Role: domain.Role(strings.ToLower(*role))}
	if !id.Role.IsValid() {
		fmt.Fprintf(os.Stderr, "Unknown role %q\n", *role)
		os.Exit(1)
	}

	lifetime := cfg.JWT.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := auth.NewJWTManager(cfg.JWT.Secret, lifetime).GenerateToken(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating JWT token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("User ID:  %s\n", id.ID)
	fmt.Printf("Role:     %s\n", id.Role)
	fmt.Printf("Expires:  %s\n", time.Now().Add(lifetime).UTC().Format(time.RFC3339))
	fmt.Printf("\nAuthorization: Bearer %s\n", token)
	fmt.Printf("\nExample:\n")
	fmt.Printf("curl -X POST http://localhost:%d/rides \\\n", cfg.HTTP.Port)
	fmt.Printf("  -H 'Authorization: Bearer %s' \\\n", token)
	fmt.Printf("  -H 'Content-Type: application/json' \\\n")
	fmt.Printf("  -d '{\"origin\":\"Tunis\",\"destination\":\"Sousse\",\"departure_time\":\"%s\",\"available_seats\":3}'\n",
		time.Now().Add(24*time.Hour).UTC().Format(time.RFC3339))
}
