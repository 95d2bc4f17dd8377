package dispatchservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"move-market/internal/domain/user"
	"move-market/internal/general/config"
	"move-market/internal/general/logger"
	"move-market/internal/general/postgres"
	"move-market/internal/general/presence"
	"move-market/internal/general/rabbitmq"
	"move-market/internal/general/token"
	"move-market/internal/general/websocket"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Run(ctx context.Context, prefetch, maxConcurrent int) error {
	// set up a new logger for the dispatch service with a static request ID for startup logs
	logger := logger.New("dispatch-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load configuration
	cfg, err := config.LoadFromFile("./config/config.yaml")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	// set up the RabbitMQ publisher
	pub := &rabbitmq.MQPublisher{Client: rmq}

	// set up the token manager
	tokens := token.NewManager(cfg.JWT.SecretKey, cfg.AccessTTL())

	// set up the presence registry
	reg := presence.NewRegistry(logger)

	// set up the necessary repos
	uow := postgres.NewUnitOfWork(pool)
	missionRepo := postgres.NewMissionRepo(pool)
	userRepo := postgres.NewUserRepo(pool)

	// set up the dispatch channel and the notifier; the notifier publishes
	// through the channel and the channel routes offer answers back
	ch := websocket.NewChannel(logger, tokens, reg, missionRepo, pub)
	notifier := websocket.NewNotifier(logger, tokens, ch, pub, uow, missionRepo, userRepo, reg, cfg.OfferTTL(), cfg.CountdownTick())
	ch.AttachNotifier(notifier)

	// start the background RabbitMQ consumer that turns offer requests into live offers
	go runOfferConsumer(ctx, logger, notifier, rmq, prefetch)

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ch.Connect)
	mux.HandleFunc("/admin/presence", presenceHandler(logger, tokens, reg))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// concurrency limiter (global) — blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebSocket.Port),            // listen on the specified port
		Handler:           limitedHandler,                                    // apply the concurrency limiter to HTTP handler
		ReadHeaderTimeout: 5 * time.Second,                                   // time to read headers
		IdleTimeout:       60 * time.Second,                                  // keep-alive window
		BaseContext:       func(net.Listener) context.Context { return ctx }, // pass base ctx to all handlers
	}

	// log service start
	logger.Info(ctx, "service_started",
		fmt.Sprintf("Dispatch Service started on port %d", cfg.WebSocket.Port),
		map[string]any{"port": cfg.WebSocket.Port, "max_concurrent": maxConcurrent, "prefetch": prefetch},
	)

	// start the server in a background goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		// graceful HTTP shutdown on context cancel
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		// server returned a terminal error at startup or during run
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.WebSocket.Port})
			return err
		}
		return nil
	}

	return nil
}

// runOfferConsumer keeps the offer-request consumer alive across broker
// reconnects until the context is cancelled.
func runOfferConsumer(ctx context.Context, log *logger.Logger, n *websocket.Notifier, rmq *rabbitmq.Client, prefetch int) {
	backoff := time.Second
	for {
		err := n.RunOfferConsumer(ctx, rmq, prefetch)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Error(ctx, "offer_consumer_stopped", "Offer consumer stopped; restarting", err, nil)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}
	}
}

// presenceHandler exposes the live driver roster to admins. The bearer
// credential must be an access token whose role carries the
// presence-inspection capability.
func presenceHandler(log *logger.Logger, tokens *token.Manager, reg *presence.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := token.FromAuthorization(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		claims, err := tokens.VerifyKind(raw, token.KindAccess)
		if err != nil {
			log.Error(r.Context(), "presence_inspect_rejected", "Presence inspection credential rejected", err, nil)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if !canInspectPresence(claims.Roles) {
			log.Error(r.Context(), "presence_inspect_forbidden", "Role lacks the presence-inspection capability", websocket.ErrForbidden,
				map[string]any{"email": claims.Subject})
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"online_drivers": reg.ListOnline(),
			"count":          reg.Count(),
		})
	}
}

// canInspectPresence reports whether any of the roles grants presence
// inspection.
func canInspectPresence(roles []user.Role) bool {
	for _, role := range roles {
		for _, c := range user.Capabilities(role) {
			if c == user.CapInspectPresence {
				return true
			}
		}
	}
	return false
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
