package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"farmacia/pos/internal/api"
	"farmacia/pos/internal/config"
	"farmacia/pos/internal/database"
	"farmacia/pos/internal/migrations"
	"farmacia/pos/internal/seed"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	n, err := seed.LoadMedications(db, cfg.SeedCSV)
	if err != nil {
		log.Printf("seed skipped: %v", err)
	} else {
		log.Printf("seeded %d medications", n)
	}
	if err := seed.EnsureOperator(db, cfg.BootstrapEmail, cfg.BootstrapPassword); err != nil {
		log.Fatalf("bootstrap operator: %v", err)
	}

	handler := api.New(db, cfg.Secret)

	log.Printf("Farmacia API starting on :%s", cfg.APIHTTPPort)
	if err := http.ListenAndServe(":"+cfg.APIHTTPPort, handler.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
