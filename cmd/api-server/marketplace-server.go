package main

import (
	"log"
	"net/http"
	"os"

	"marketplace/db"
	"marketplace/db/migrations"
	"marketplace/internal/directory"
	"marketplace/internal/handlers"
	"marketplace/internal/notify"
	"marketplace/internal/sweeper"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// .env для локального запуска, в проде переменные приходят из окружения
	godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Cannot create logger: %v", err)
	}
	defer logger.Sync()

	connString := os.Getenv("POSTGRES_CONN")
	if connString == "" {
		log.Fatal("POSTGRES_CONN env variable is not set")
	}

	dbConn, err := sqlx.Connect("postgres", connString)
	if err != nil {
		log.Fatalf("Cannot connect to DB: %v", err)
	}
	defer dbConn.Close()

	migrations.Run(connString)

	// Без NATS_URL события просто не отправляются: состояние в базе
	// первично, уведомления вторичны
	var publisher notify.Publisher = notify.Noop{}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		nc, err := nats.Connect(natsURL)
		if err != nil {
			log.Fatalf("Cannot connect to NATS: %v", err)
		}
		defer nc.Close()
		publisher = notify.NewNATSPublisher(nc, logger)
	}

	store := db.NewStorage(dbConn, logger)
	dir := directory.NewPostgresDirectory(dbConn)
	h := handlers.NewHandler(store, dir, publisher)

	sw := sweeper.New(store, publisher, logger)
	schedule := os.Getenv("SWEEP_SCHEDULE")
	if schedule == "" {
		schedule = "@every 1m"
	}
	if err := sw.Start(schedule); err != nil {
		log.Fatalf("Cannot start sweeper: %v", err)
	}
	defer sw.Stop()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)
		// тендеры
		r.Post("/tenders/new", h.CreateTenderHandler)
		r.Get("/tenders/open", h.ListOpenTendersHandler)
		r.Get("/tenders/{tenderId}/history", h.GetTenderHistoryHandler)
		r.Put("/tenders/{tenderId}/cancel", h.CancelTenderHandler)
		r.Put("/tenders/{tenderId}/complete", h.CompleteTenderHandler)
		// предложения (quotes)
		r.Post("/tenders/{tenderId}/quotes/new", h.SubmitQuoteHandler)
		r.Get("/tenders/{tenderId}/quotes", h.RankQuotesHandler)
		r.Put("/tenders/{tenderId}/accept", h.AcceptQuoteHandler)
		r.Put("/quotes/{quoteId}/withdraw", h.WithdrawQuoteHandler)
	})

	serverAddr := os.Getenv("SERVER_ADDRESS")
	if serverAddr == "" {
		serverAddr = "0.0.0.0:8080"
	}

	log.Printf("Starting server on %s", serverAddr)
	log.Fatal(http.ListenAndServe(serverAddr, r))
}
