package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stopalarm/internal/alarm/application"
	alarmsqlite "stopalarm/internal/alarm/infrastructure/sqlite"
	alarmhttp "stopalarm/internal/alarm/interfaces/http"
	"stopalarm/internal/auth"
	"stopalarm/internal/config"
	"stopalarm/internal/diag"
	eventingsqlite "stopalarm/internal/eventing/infrastructure/sqlite"
	"stopalarm/internal/location"
	"stopalarm/internal/notify"
	"stopalarm/internal/observability/metrics"
	"stopalarm/internal/reconcile"
	"stopalarm/internal/remote"
	remotehttp "stopalarm/internal/remote/httpapi"
	remotepg "stopalarm/internal/remote/postgres"
	"stopalarm/internal/storage/sqlite"
	"stopalarm/internal/supervisor"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		logger.Fatalf("sqlite open error: %v", err)
	}
	defer db.Close()

	sink, err := diag.NewFileSink(cfg.LogDir)
	if err != nil {
		logger.Fatalf("diag sink error: %v", err)
	}
	defer sink.Close()

	metrics.Init()

	sessions := alarmsqlite.NewSessionRepository(db)
	states := alarmsqlite.NewDecisionStateRepository(db)
	creates := alarmsqlite.NewCreateQueue(db, cfg.Queue.CreateCap)
	heartbeats := alarmsqlite.NewHeartbeatLog(db, cfg.Queue.HeartbeatCap)
	queue := eventingsqlite.NewQueueStore(db, cfg.Queue.SyncCap)

	store, pgdb, err := buildRemoteStore(cfg, logger)
	if err != nil {
		logger.Fatalf("remote store error: %v", err)
	}
	if pgdb != nil {
		defer pgdb.Close()
	}

	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}
	if cfg.Alert.WebhookURL != "" {
		channel, err := notify.NewWebhookChannel(cfg.Alert.WebhookURL)
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		notifiers = append(notifiers, channel)
	}
	notifier := notify.NewMultiNotifier(notifiers...)

	evaluator, err := application.NewBackgroundEvaluator(sessions, states, queue, heartbeats, notifier, sink)
	if err != nil {
		logger.Fatalf("evaluator error: %v", err)
	}
	service, err := application.NewService(sessions, states, creates, queue, store, sink)
	if err != nil {
		logger.Fatalf("session service error: %v", err)
	}
	reconciler, err := reconcile.NewReconciler(queue, store, sink, logger)
	if err != nil {
		logger.Fatalf("reconciler error: %v", err)
	}

	provider := location.NewReportedProvider()
	scheduler := supervisor.NewTickerScheduler(provider)
	settings := func() application.Settings {
		return application.Settings{
			Decision:    cfg.EngineConfig(),
			DedupWindow: cfg.DedupWindow(),
			AlertTitle:  cfg.Alert.Title,
			AlertBody:   cfg.Alert.Body,
		}
	}
	super, err := supervisor.New(provider, evaluator, sessions, scheduler, settings, cfg.CadenceBands(), sink, logger)
	if err != nil {
		logger.Fatalf("supervisor error: %v", err)
	}

	handler, err := alarmhttp.NewHandler(service, reconciler, heartbeats, provider, auth.NewMiddleware([]byte(cfg.JWTSecret)))
	if err != nil {
		logger.Fatalf("handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", handler.Routes())
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := super.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Printf("supervisor stopped: %v", err)
		}
	}()
	go runPeriodicReconcile(ctx, service, reconciler, cfg.ReconcileInterval(), logger)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func buildRemoteStore(cfg config.Config, logger *log.Logger) (remote.Store, *sql.DB, error) {
	switch cfg.Remote.Backend {
	case "postgres":
		db, err := sql.Open("pgx", cfg.Remote.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(); err != nil {
			logger.Printf("postgres unreachable at startup: %v", err)
		}
		return remotepg.NewStore(db), db, nil
	default:
		store, err := remotehttp.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}

// runPeriodicReconcile opportunistically flushes offline creates and drains
// the sync queue while the process is up. Errors are logged and retried on
// the next tick; the queue itself is the durability guarantee.
func runPeriodicReconcile(ctx context.Context, service *application.Service, reconciler *reconcile.Reconciler, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := service.FlushPendingCreates(ctx); err != nil {
			logger.Printf("flush pending creates: %v", err)
		}
		if _, err := reconciler.Drain(ctx); err != nil {
			logger.Printf("drain sync queue: %v", err)
		}
	}
}
