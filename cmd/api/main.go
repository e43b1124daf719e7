package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/tablesplit/tablesplit/internal/bill"
	"github.com/tablesplit/tablesplit/internal/config"
	"github.com/tablesplit/tablesplit/internal/database"
	"github.com/tablesplit/tablesplit/internal/fantasy"
	"github.com/tablesplit/tablesplit/internal/locker"
	"github.com/tablesplit/tablesplit/internal/notify"
	"github.com/tablesplit/tablesplit/internal/order"
	"github.com/tablesplit/tablesplit/internal/payment"
	"github.com/tablesplit/tablesplit/internal/session"
	"github.com/tablesplit/tablesplit/internal/settlement"
	mw "github.com/tablesplit/tablesplit/pkg/middleware"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using environment variables")
	}

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: Postgres when configured, in-memory otherwise.
	var (
		sessionStore    session.Store
		orderStore      order.Store
		settlementStore settlement.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()

		if err := database.Migrate(db); err != nil {
			log.WithError(err).Fatal("Failed to run migrations")
		}
		log.Info("Connected to database successfully")

		sessionStore = session.NewRepository(db)
		orderStore = order.NewRepository(db, cfg.TaxRateBasisPoints)
		settlementStore = settlement.NewRepository(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory storage")
		sessionStore = session.NewMemoryStore()
		orderStore = order.NewMemoryStore(cfg.TaxRateBasisPoints)
		settlementStore = settlement.NewMemoryStore()
	}

	// Shared infrastructure.
	locks := locker.New()
	names := fantasy.NewAllocator(0)
	hub := notify.NewHub(log)
	go hub.Run(ctx)

	// Session & participant registry.
	sessionService := session.NewService(sessionStore, names, locks, orderStore, settlementStore, hub, cfg.OrphanOrderPolicy)
	sessionHandler := session.NewHandler(sessionService)

	// Cart and order lifecycle.
	orderService := order.NewService(orderStore, sessionStore, locks, hub)
	orderHandler := order.NewHandler(orderService)

	// Settlement coordination.
	settlementService := settlement.NewService(settlementStore, orderStore, sessionStore, locks, payment.TerminalCharger{}, hub, sessionService)
	settlementHandler := settlement.NewHandler(settlementService)

	sweeper := settlement.NewSweeper(settlementService, cfg.SweepInterval, cfg.SplitInactivityWindow, log)
	go sweeper.Run(ctx)

	// Staff bill summary.
	billService := bill.NewService(sessionStore, orderStore, settlementStore)
	billHandler := bill.NewHandler(billService)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(mw.RequestLogger(log))
	r.Use(mw.ParticipantContext)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Staff live feed of order and settlement events.
	r.Get("/ws/staff", hub.ServeWS)

	r.Get("/swagger/*", httpSwagger.WrapHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/sessions", sessionHandler.Routes())
		r.Mount("/participants", sessionHandler.ParticipantRoutes())
		r.Mount("/orders", orderHandler.Routes())
		r.Mount("/order-items", orderHandler.ItemRoutes())
		r.Mount("/splits", settlementHandler.Routes())
		r.Mount("/bills", billHandler.Routes())
	})

	log.WithField("port", cfg.Port).Info("Server starting")
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.WithError(err).Fatal("Server failed to start")
	}
}
