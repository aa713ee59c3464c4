package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	staylinkchat "staylink-chat"
	"staylink-chat/config"
	"staylink-chat/pkg/database"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [up|down|status]\n", os.Args[0])
	}
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	cfg := config.LoadConfig()
	url := cfg.DatabaseURL()

	switch command {
	case "up":
		if err := database.Migrate(url, staylinkchat.MigrationsFS); err != nil {
			log.Fatalf("migrate up: %v", err)
		}
		log.Println("migrations applied")
	case "down":
		if err := database.Rollback(url, staylinkchat.MigrationsFS); err != nil {
			log.Fatalf("migrate down: %v", err)
		}
		log.Println("last migration rolled back")
	case "status":
		version, dirty, err := database.MigrationVersion(url, staylinkchat.MigrationsFS)
		if err != nil {
			log.Fatalf("migrate status: %v", err)
		}
		log.Printf("version=%d dirty=%v", version, dirty)
	default:
		flag.Usage()
		os.Exit(2)
	}
}
