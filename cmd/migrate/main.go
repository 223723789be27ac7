package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/migrate"
	"ghginventory.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn     = flag.String("dsn", os.Getenv("GHG_PG_DSN"), "PostgreSQL DSN")
		timeout = flag.Duration("timeout", 30*time.Second, "Overall deadline")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or GHG_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn, pg.PoolConfig{MaxOpenConns: 2})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB())

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			fmt.Println("applied", name)
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			fmt.Println("rolled back", name)
		}
	case "seed":
		err = seed(ctx, mgr, store)
	case "status":
		err = status(ctx, mgr)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

func seed(ctx context.Context, mgr *migrate.Manager, store *pg.Store) error {
	applied, err := mgr.Seed(ctx)
	if err != nil {
		return err
	}
	for _, name := range applied {
		fmt.Println("seeded", name)
	}
	email := os.Getenv("GHG_ROOT_EMAIL")
	if email == "" {
		return nil
	}
	user, created, err := auth.EnsureRoot(ctx, store, auth.RootAccount{
		Email:       email,
		Password:    os.Getenv("GHG_ROOT_PASSWORD"),
		Name:        "Registry Root",
		CompanyName: "National Registry",
	})
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("root account %s created (id %d)\n", user.Email, user.ID)
	}
	return nil
}

func status(ctx context.Context, mgr *migrate.Manager) error {
	history, err := mgr.Status(ctx)
	if err != nil {
		return err
	}
	for _, item := range history {
		fmt.Println("applied", item)
	}
	pending, err := mgr.Pending(ctx)
	if err != nil {
		return err
	}
	for _, item := range pending {
		fmt.Println("pending", item)
	}
	return nil
}
