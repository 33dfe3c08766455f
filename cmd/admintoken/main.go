// Command admintoken mints a short-lived bearer token for the admin API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"oasis-billing/internal/infra/api"
)

func main() {
	subject := flag.String("sub", "ops", "token subject")
	ttl := flag.Duration("ttl", 30*time.Minute, "token lifetime")
	flag.Parse()

	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		log.Fatal("ADMIN_JWT_SECRET is not set")
	}

	tok, err := api.NewAuthManager(secret, *ttl).Mint(*subject, time.Now())
	if err != nil {
		log.Fatalf("mint: %v", err)
	}
	fmt.Println(tok)
}
