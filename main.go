package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"ordenes-service/clients"
	"ordenes-service/config"
	"ordenes-service/consumers"
	"ordenes-service/controllers"
	"ordenes-service/database"
	"ordenes-service/logger"
	"ordenes-service/middlewares"
	"ordenes-service/models"
	"ordenes-service/observability"
	"ordenes-service/rabbitmq"
	"ordenes-service/repository"
	"ordenes-service/services"
	"ordenes-service/utils"
)

func main() {
	cfg := config.LoadConfig()

	log, err := logger.New(config.ServiceName, cfg.Environment, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracingSDK(ctx, cfg)
	if err != nil {
		log.Fatal("tracing setup failed", zap.Error(err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	db, err := database.InitDB(ctx, cfg)
	if err != nil {
		log.Fatal("database initialization failed", zap.Error(err))
	}
	defer db.Close()

	store := repository.NewStore(db)
	products := clients.NewProductClient(cfg.ProductServiceURL, cfg.HTTPClientTimeout, log.Named("productos"))

	// The broker is optional: without it events are dropped and unpaid orders
	// are not auto-cancelled.
	var bus services.EventBus
	rmq, err := rabbitmq.NewRabbitMQ(cfg, log.Named("rabbitmq"))
	if err != nil {
		log.Warn("rabbitmq unavailable, events disabled", zap.Error(err))
	} else {
		defer rmq.Close()
		if err := rmq.SetupQueues(); err != nil {
			log.Warn("rabbitmq setup failed, events disabled", zap.Error(err))
		} else {
			bus = rmq
		}
	}

	serviceIdentity := models.Identity{UserID: cfg.ServiceUserID, Email: config.ServiceName, Role: models.RoleAdmin}
	cartService := services.NewCartService(store, products, log.Named("carrito"))
	orderService := services.NewOrderService(store, products, services.NewNotifier(bus, log.Named("eventos")), log.Named("ordenes"),
		services.OrderServiceOptions{
			PaymentCheckDelay: cfg.PaymentCheckDelay,
			ServiceToken: func() (string, error) {
				tok, err := utils.GenerateToken(serviceIdentity, cfg.JWTSecret, 5*time.Minute)
				if err != nil {
					return "", err
				}
				return "Bearer " + tok, nil
			},
		})

	if bus != nil && rmq.DelayEnabled() {
		ch, err := rmq.Conn.Channel()
		if err != nil {
			log.Warn("consumer channel unavailable", zap.Error(err))
		} else if err := consumers.NewOrderConsumer(orderService, log.Named("consumer")).Start(ctx, ch, cfg); err != nil {
			log.Warn("payment-check consumer not started", zap.Error(err))
		}
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware(cfg), middlewares.RequestLogger(log.Named("http")), middlewares.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": config.ServiceName, "version": config.ServiceVersion})
	})

	controllers.RegisterRoutes(r,
		middlewares.AuthMiddleware(cfg.JWTSecret, log.Named("auth")),
		controllers.NewCartController(cartService, log),
		controllers.NewOrderController(orderService, log))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("ordenes service starting", zap.String("port", cfg.Port), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown requested")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
	}
	log.Info("bye")
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	cc.AllowAllOrigins = len(cfg.CORSOrigins) == 0
	for _, o := range cfg.CORSOrigins {
		if o == "*" {
			cc.AllowAllOrigins = true
		}
	}
	if !cc.AllowAllOrigins {
		cc.AllowOrigins = cfg.CORSOrigins
	}
	return cors.New(cc)
}
