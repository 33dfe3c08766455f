package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"oasis-billing/internal/config"
	pg "oasis-billing/internal/infra/db/postgres"
	"oasis-billing/internal/usecase"
)

func main() {
	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("database.url is required to seed plans")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	planUC := usecase.NewPlanUseCase(pg.NewPlanRepo(pool))

	added, err := planUC.EnsureDefaults(ctx)
	if err != nil {
		log.Fatalf("seed plans: %v", err)
	}

	plans, err := planUC.List(ctx)
	if err != nil {
		log.Fatalf("list plans: %v", err)
	}
	fmt.Printf("%d plans added, %d present:\n", added, len(plans))
	for _, p := range plans {
		fmt.Printf("  - %s %q (days=%d, price=%d %s)\n", p.ID, p.Name, p.DurationDays, p.Price, p.Currency)
	}
}
