package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/marx5/storefront/internal/cart"
	"github.com/marx5/storefront/internal/checkout"
	"github.com/marx5/storefront/internal/messaging"
	"github.com/marx5/storefront/internal/payment"
	"github.com/marx5/storefront/internal/telemetry"
)

const serviceVersion = "0.1.0"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront-api", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront-api", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		logger.Error("REDIS_ADDR environment variable is required")
		os.Exit(1)
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() { _ = redisClient.Close() }()

	var producer *messaging.Producer
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		producer = messaging.NewProducer(strings.Split(kafkaBrokers, ","))
		defer func() { _ = producer.Close() }()
	} else {
		logger.Warn("KAFKA_BROKERS not set, notification events disabled")
	}

	providers := buildProviders(logger)

	checkoutService := checkout.NewService(db, producer, cart.NewCache(redisClient), logger)
	checkoutRepo := checkout.NewRepository(db)
	checkoutHandler := checkout.NewHandler(checkoutService, checkoutRepo, logger)

	paymentService := payment.NewService(db, providers, payment.NewStateStore(redisClient), producer, logger)
	paymentHandler := payment.NewHandler(paymentService, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(checkoutHandler.HandleCreate))
	mux.HandleFunc("POST /orders/buy-now", telemetry.WithHTTPRoute(checkoutHandler.HandleBuyNow))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(checkoutHandler.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(checkoutHandler.HandleGet))
	mux.HandleFunc("POST /orders/{id}/cancel", telemetry.WithHTTPRoute(checkoutHandler.HandleCancel))
	mux.HandleFunc("POST /payments", telemetry.WithHTTPRoute(paymentHandler.HandleInitiate))
	mux.HandleFunc("GET /payments/vnpay/callback", telemetry.WithHTTPRoute(paymentHandler.HandleVNPayCallback))
	mux.HandleFunc("GET /payments/paypal/callback", telemetry.WithHTTPRoute(paymentHandler.HandlePayPalReturn))
	mux.HandleFunc("GET /payments/paypal/cancel", telemetry.WithHTTPRoute(paymentHandler.HandlePayPalCancel))
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "storefront-api",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting storefront api", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// buildProviders registers cash on delivery unconditionally and each online
// provider only when its credentials are configured.
func buildProviders(logger *slog.Logger) payment.Registry {
	providers := []payment.Provider{payment.NewCOD()}

	if tmnCode := os.Getenv("VNPAY_TMN_CODE"); tmnCode != "" {
		providers = append(providers, payment.NewVNPay(
			tmnCode,
			os.Getenv("VNPAY_HASH_SECRET"),
			os.Getenv("VNPAY_URL"),
			os.Getenv("VNPAY_RETURN_URL"),
		))
	} else {
		logger.Warn("VNPAY_TMN_CODE not set, vnpay payments disabled")
	}

	if clientID := os.Getenv("PAYPAL_CLIENT_ID"); clientID != "" {
		exchangeRate := int64(23_000)
		if raw := os.Getenv("PAYPAL_EXCHANGE_RATE"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || parsed <= 0 {
				logger.Error("invalid PAYPAL_EXCHANGE_RATE", "value", raw)
				os.Exit(1)
			}
			exchangeRate = parsed
		}
		providers = append(providers, payment.NewPayPal(
			clientID,
			os.Getenv("PAYPAL_CLIENT_SECRET"),
			os.Getenv("PAYPAL_API_URL"),
			os.Getenv("PAYPAL_RETURN_URL"),
			os.Getenv("PAYPAL_CANCEL_URL"),
			exchangeRate,
			&http.Client{
				Timeout:   10 * time.Second,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
		))
	} else {
		logger.Warn("PAYPAL_CLIENT_ID not set, paypal payments disabled")
	}

	return payment.NewRegistry(providers...)
}
