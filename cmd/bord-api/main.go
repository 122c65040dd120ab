package main

import (
	"context"
	"database/sql"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/manvelegoyan072/bord-application/internal/ai"
	"github.com/manvelegoyan072/bord-application/internal/alert"
	"github.com/manvelegoyan072/bord-application/internal/config"
	"github.com/manvelegoyan072/bord-application/internal/crm"
	"github.com/manvelegoyan072/bord-application/internal/fetch"
	"github.com/manvelegoyan072/bord-application/internal/filter"
	server "github.com/manvelegoyan072/bord-application/internal/http"
	"github.com/manvelegoyan072/bord-application/internal/migrate"
	"github.com/manvelegoyan072/bord-application/internal/pipeline"
	"github.com/manvelegoyan072/bord-application/internal/scraper"
	"github.com/manvelegoyan072/bord-application/internal/storage"
	"github.com/manvelegoyan072/bord-application/internal/store"
)

func main() {
	role := flag.String("role", "all", "process role: api|worker|all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config failed: %v", err)
	}

	logger := newLogger(cfg.LogFile)

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Create a shared *sql.DB with pooling for the Store
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	// Basic pool settings; adjust as needed
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := store.New(db)

	fetcher := fetch.NewClient(fetch.DefaultTimeout)
	objects, err := storage.NewClient(cfg.Storage, fetcher, logger)
	if err != nil {
		log.Fatalf("object store failed: %v", err)
	}

	notifier := alert.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	rod := scraper.NewRodScraper(cfg.Scraper.BrowserURL, cfg.Scraper.DownloadDir, objects, logger)
	filters := filter.NewEngine(st, logger)
	classifier := ai.NewClassifier(cfg.AI.BaseURL, cfg.AI.Token, objects, fetcher, st, logger)
	exporter := crm.NewExporter(cfg.CRM.WebhookURL, objects, notifier, logger)

	processor := pipeline.NewProcessor(st, fetcher, objects, rod, filters, classifier, exporter, notifier, logger)
	runner := pipeline.NewRunner(cfg, st, processor, logger)

	rootCtx := context.Background()

	switch *role {
	case "api":
		// API-only: do not start the pipeline worker.
		s := server.NewServer(cfg, st, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	case "worker":
		// Worker-only: start the pipeline worker and block.
		runner.Start(rootCtx)
	case "all":
		// Default: run both API and worker in one process.
		go runner.Start(rootCtx)
		s := server.NewServer(cfg, st, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	default:
		log.Fatalf("invalid role: %s (expected api|worker|all)", *role)
	}
}

// newLogger writes text logs to stdout, and also to the configured log
// file when one is set.
func newLogger(logFile string) *slog.Logger {
	var out io.Writer = os.Stdout
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Printf("cannot open log file %s: %v", logFile, err)
		} else {
			out = io.MultiWriter(os.Stdout, f)
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{}))
}
