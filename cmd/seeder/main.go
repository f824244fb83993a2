// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/unclebandit/marketing-dashboard/internal/config"
	"github.com/unclebandit/marketing-dashboard/internal/db"
)

var seedFiles = []string{
	"seed/schema.sql",
	"seed/role_permissions.sql",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config: ", err)
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, db.Options{URL: cfg.DatabaseURL, MaxOpenConns: 1})
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("failed to read %s: %v", file, err)
		}
		if _, err := pool.ExecContext(ctx, string(content)); err != nil {
			log.Fatalf("failed to execute %s: %v", file, err)
		}
		fmt.Printf("Seeded: %s\n", file)
	}

	fmt.Println("Database seeding completed successfully!")
}
