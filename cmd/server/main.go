package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/vmeassist/opsd/internal/api"
	"github.com/vmeassist/opsd/internal/events"
	"github.com/vmeassist/opsd/internal/middleware"
	"github.com/vmeassist/opsd/internal/notify"
	"github.com/vmeassist/opsd/internal/queue"
	"github.com/vmeassist/opsd/internal/repository"
	"github.com/vmeassist/opsd/internal/runner"
	"github.com/vmeassist/opsd/internal/store"
	"github.com/vmeassist/opsd/internal/token"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	// Persistent backend: selected once at startup. A missing or
	// unreachable DSN means the in-memory fallback serves everything.
	var (
		repo      repository.TaskRepository
		eventRepo repository.EventRepository
	)
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		pg, err := repository.NewPostgresRepository(dsn)
		if err != nil {
			log.Printf("Postgres unavailable, running with in-memory stores: %v", err)
		} else {
			repo = pg
			eventRepo = pg
			defer func() {
				if err := pg.Close(); err != nil {
					log.Printf("failed to close Postgres repository: %v", err)
				}
			}()
			log.Println("Connected to Postgres")
		}
	} else {
		log.Println("POSTGRES_DSN not set, tasks and events are in-memory only")
	}

	var q queue.Queue
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rq, err := queue.NewRedisQueue(addr)
		if err != nil {
			log.Printf("Redis unavailable, using in-memory queue: %v", err)
			q = queue.NewMemoryQueue()
		} else {
			q = rq
			log.Printf("Connected to Redis at %s", addr)
		}
	} else {
		q = queue.NewMemoryQueue()
	}
	defer func() {
		if err := q.Close(); err != nil {
			log.Printf("failed to close queue: %v", err)
		}
	}()

	s := store.New(repo)
	eventLog := events.NewLog(eventRepo)

	fake := isTruthy(os.Getenv("DEV_LOCAL_LLM")) || os.Getenv("OPENAI_API_KEY") == ""
	if fake {
		log.Println("Running task executor in deterministic fake mode")
	}

	r := runner.New(q, s, eventLog, runner.DefaultRun(fake))

	notifyCfg := notify.Config{
		APIKey:      os.Getenv("EMAIL_API_KEY"),
		To:          os.Getenv("OPS_ALERT_EMAIL"),
		FromName:    os.Getenv("FROM_NAME"),
		FromAddress: os.Getenv("FROM_ADDRESS"),
	}
	if notifyCfg.Enabled() {
		r.SetNotifier(notify.NewEmailNotifier(notifyCfg))
		log.Printf("Failure alerts enabled, sending to %s", notifyCfg.To)
	}

	adminToken := os.Getenv("SETTINGS_ADMIN_TOKEN")
	ciToken := os.Getenv("CI_SETTINGS_ADMIN_TOKEN")
	if adminToken == "" && ciToken == "" {
		log.Println("WARNING: no admin tokens configured, ops endpoints restricted to loopback")
	}

	secret := os.Getenv("OPS_STREAM_SECRET")
	if secret == "" {
		// Unsigned tokens are a dev convenience only; production must set
		// OPS_STREAM_SECRET.
		secret = adminToken
		if secret == "" {
			log.Println("WARNING: no stream secret configured, issuing unsigned stream tokens")
		}
	}

	apiHandler := api.NewAPI(s, eventLog, r, eventRepo, token.NewCodec(secret), api.NewAdminAuth(adminToken, ciToken), fake)

	go startMetricsCollector(s, q)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: middleware.MetricsMiddleware(apiHandler),
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	r.Stop()
	if err := srv.Close(); err != nil {
		log.Printf("failed to close server: %v", err)
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}

	return false
}
