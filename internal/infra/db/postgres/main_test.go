//go:build integration

package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"oasis-billing/internal/config"
)

var testPool *pgxpool.Pool

// schemaPath walks up to the module root and returns deploy/postgres/init.sql.
func schemaPath() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "deploy", "postgres", "init.sql"), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found above working directory")
		}
		dir = parent
	}
}

// startContainer runs a throwaway postgres and returns its url and a stop func.
func startContainer() (string, func(), error) {
	const (
		db   = "billing_test"
		user = "billing"
		pass = "billing"
		port = "55432"
	)
	cmd := exec.Command("docker", "run", "-d", "--rm",
		"-p", port+":5432",
		"-e", "POSTGRES_DB="+db,
		"-e", "POSTGRES_USER="+user,
		"-e", "POSTGRES_PASSWORD="+pass,
		"postgres:16-alpine",
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", nil, fmt.Errorf("docker run: %w", err)
	}
	id := strings.TrimSpace(out.String())
	stop := func() {
		if err := exec.Command("docker", "stop", id).Run(); err != nil {
			log.Printf("stop postgres container %.12s: %v", id, err)
		}
	}
	return fmt.Sprintf("postgres://%s:%s@localhost:%s/%s?sslmode=disable", user, pass, port, db), stop, nil
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	url := os.Getenv("TEST_DATABASE_URL")
	stop := func() {}
	if url == "" {
		var err error
		url, stop, err = startContainer()
		if err != nil {
			log.Fatalf("no TEST_DATABASE_URL and %v. Is Docker running?", err)
		}
	}

	cfg := &config.DatabaseConfig{URL: url, MaxConns: 8}
	var err error
	for attempt := 1; attempt <= 15; attempt++ {
		testPool, err = NewPgxPool(ctx, cfg)
		if err == nil {
			break
		}
		log.Printf("waiting for postgres (%d/15): %v", attempt, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		stop()
		log.Fatalf("postgres never became ready: %v", err)
	}

	path, err := schemaPath()
	if err != nil {
		stop()
		log.Fatal(err)
	}
	schema, err := os.ReadFile(path)
	if err != nil {
		stop()
		log.Fatalf("read %s: %v", path, err)
	}
	if _, err := testPool.Exec(ctx, string(schema)); err != nil {
		stop()
		log.Fatalf("apply schema: %v", err)
	}

	code := m.Run()

	testPool.Close()
	stop()
	os.Exit(code)
}

func cleanup(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `
		TRUNCATE
			callback_events, subscription_activations, user_subscriptions,
			transactions, subscription_plans
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
