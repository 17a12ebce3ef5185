package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"
	"google.golang.org/grpc"

	_ "github.com/mujo0401/Fitness-Console/analyzer/docs"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/archive"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/batch"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/config"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/handler"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/health"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/ingest"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/server"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/session"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/stream"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/websocket"
	telemetryv1 "github.com/mujo0401/Fitness-Console/proto/telemetry"
)

// @title Rhythm Analyzer API
// @version 1.0
// @description Анализ вариабельности сердечного ритма (RMSSD, SDNN, pNN50, Poincaré)
// @description и поиск нарушений ритма: тахикардия, брадикардия, резкие изменения,
// @description низкая HRV, возможная фибрилляция предсердий, эктопические сокращения.

// @contact.name API Support

// @host localhost:8080
// @BasePath /
// @schemes http

func main() {
	log.Printf("[INFO] Starting rhythm analyzer...")

	cfg := config.Load()
	log.Printf("[INFO] Configuration loaded: grpc_port=%s http_port=%s batch_max_samples=%d batch_max_span_ms=%d",
		cfg.GRPCPort, cfg.HTTPPort, cfg.BatchMaxSamples, cfg.BatchMaxSpanMS)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis: горячее хранилище активных сессий
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("[FATAL] Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
	}
	defer redisClient.Close()
	log.Printf("[INFO] Connected to Redis at %s", cfg.RedisAddr)

	// PostgreSQL: без него сессии живут только в Redis
	var repository session.Repository
	postgresRepo, err := session.NewPostgresRepositoryFromDSN(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Printf("[WARN] PostgreSQL unavailable, sessions will not be persisted: %v", err)
	} else {
		if err := postgresRepo.Migrate(ctx); err != nil {
			log.Fatalf("[FATAL] Failed to migrate PostgreSQL schema: %v", err)
		}
		defer postgresRepo.Close()
		repository = postgresRepo
		log.Printf("[INFO] Connected to PostgreSQL")
	}

	dataTTL := time.Duration(cfg.SessionDataTTLSeconds) * time.Second
	sessionManager := session.NewManager(session.NewRedisStore(redisClient), repository, dataTTL)

	hub := websocket.NewHub(cfg.AllowedOrigin)
	go hub.Run(ctx)

	analysisSink := batch.NewAnalysisSink(sessionManager, hub)

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = stream.Connect(cfg.NATSURL)
		if err != nil {
			log.Printf("[WARN] NATS unavailable at %s: %v", cfg.NATSURL, err)
			natsConn = nil
		} else {
			analysisSink.AddPublisher(stream.NewEventPublisher(natsConn, cfg.NATSEventsSubject))
			log.Printf("[INFO] Connected to NATS at %s, events subject %s", cfg.NATSURL, cfg.NATSEventsSubject)
		}
	}

	eventArchive, err := archive.LoadFromEnvironment(ctx)
	if err != nil {
		log.Printf("[WARN] ClickHouse archive disabled: %v", err)
	} else if eventArchive != nil {
		analysisSink.AddPublisher(eventArchive)
		defer eventArchive.Close()
	}

	batcher := batch.NewBatcher(cfg, batch.NewCompositeSink(&batch.LogSink{}, analysisSink))

	var subscriber *stream.SampleSubscriber
	if natsConn != nil {
		subscriber = stream.NewSampleSubscriber(natsConn, cfg.NATSIngestSubject, batcher)
		if err := subscriber.Start(); err != nil {
			log.Printf("[WARN] NATS sample ingest disabled: %v", err)
			subscriber = nil
		}
	}

	// gRPC
	grpcServer := grpc.NewServer()

	dataServer := server.NewDataServer(cfg, batcher)
	telemetryv1.RegisterDataServiceServer(grpcServer, dataServer)

	healthServer := health.NewHealthServer()
	healthServer.Register(grpcServer)

	grpcAddress := fmt.Sprintf(":%s", cfg.GRPCPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		log.Fatalf("[FATAL] Failed to listen on %s: %v", grpcAddress, err)
	}

	// HTTP: маршруты анализа регистрируются раньше маршрутов сессий,
	// иначе /api/sessions/{id}/samples перехватит подроутер сессий
	bleBuffer := ingest.NewReadingBuffer(cfg.BLEBufferSize, cfg.BLEBufferMaxAge)

	router := mux.NewRouter()
	handler.NewHTTPHandler(batcher, bleBuffer).RegisterRoutes(router)
	session.NewHTTPHandler(sessionManager).RegisterRoutes(router)

	router.HandleFunc("/ws", hub.HandleWebSocket)
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))
	router.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := map[string]interface{}{
			"batcher":           batcher.GetStats(),
			"websocket_clients": hub.ClientCount(),
			"ble_readings":      bleBuffer.Len(),
			"timestamp":         time.Now().Format(time.RFC3339),
		}
		if subscriber != nil {
			received, rejected := subscriber.Counts()
			stats["nats"] = map[string]int64{"received": received, "rejected": rejected}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}).Methods("GET")

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      enableCORS(cfg.AllowedOrigin, logRequests(router)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	healthServer.SetServingStatus("")
	healthServer.SetServingStatus(telemetryv1.DataService_ServiceName)

	serverErrChan := make(chan error, 2)
	go func() {
		log.Printf("[INFO] gRPC server listening on %s", grpcAddress)
		if err := grpcServer.Serve(listener); err != nil {
			serverErrChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		log.Printf("[INFO] HTTP server listening on :%s (swagger at /swagger/index.html)", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrChan:
		log.Printf("[ERROR] Server error: %v", err)
	case sig := <-shutdownChan:
		log.Printf("[INFO] Received signal %v, starting graceful shutdown...", sig)
	}

	healthServer.SetNotServingStatus("")
	healthServer.SetNotServingStatus(telemetryv1.DataService_ServiceName)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] HTTP server forced to shutdown: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		log.Printf("[WARN] Graceful shutdown timeout, forcing stop")
		grpcServer.Stop()
	}

	if subscriber != nil {
		if err := subscriber.Stop(); err != nil {
			log.Printf("[WARN] Failed to unsubscribe from NATS: %v", err)
		}
	}

	// Остаток окон уходит в sink до закрытия хранилищ
	batcher.Stop()
	healthServer.Shutdown()

	if natsConn != nil {
		if err := natsConn.Drain(); err != nil {
			log.Printf("[WARN] Failed to drain NATS connection: %v", err)
		}
	}

	cancel()
	log.Printf("[INFO] Analyzer stopped")
}

func enableCORS(allowedOrigin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[HTTP] %s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}
