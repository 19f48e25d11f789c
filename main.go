package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"farmacia/pos/internal/catalog"
	"farmacia/pos/internal/checkout"
	"farmacia/pos/internal/config"
	"farmacia/pos/internal/farmacia"
	"farmacia/pos/internal/session"
	"farmacia/pos/internal/web"
	"farmacia/pos/internal/workflow"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	client := farmacia.New(cfg.APIBaseURL,
		farmacia.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		farmacia.WithEndpoints(farmacia.Endpoints{
			Medications: cfg.MedicationsPath,
			Clients:     cfg.ClientsPath,
			Sales:       cfg.SalesPath,
			Login:       cfg.LoginPath,
		}),
	)

	registry := workflow.NewRegistry(catalog.NewLoader(client), func() workflow.Submitter {
		return checkout.NewGateway(client)
	})

	handler, err := web.New(client, session.NewStore(cfg.SessionCookie), registry, cfg.RequestTimeout)
	if err != nil {
		log.Fatalf("templates: %v", err)
	}

	log.Printf("Farmacia dashboard starting on :%s (api %s)", cfg.HTTPPort, cfg.APIBaseURL)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
