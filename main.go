package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Eursukkul/showpass/config"
	"github.com/Eursukkul/showpass/internal/checkin"
	"github.com/Eursukkul/showpass/internal/clock"
	"github.com/Eursukkul/showpass/internal/consumer"
	"github.com/Eursukkul/showpass/internal/credential"
	"github.com/Eursukkul/showpass/internal/handler"
	"github.com/Eursukkul/showpass/internal/ledger"
	"github.com/Eursukkul/showpass/internal/middleware"
	"github.com/Eursukkul/showpass/internal/payment"
	"github.com/Eursukkul/showpass/internal/pricing"
	"github.com/Eursukkul/showpass/internal/repository"
	"github.com/Eursukkul/showpass/internal/repository/memory"
	"github.com/Eursukkul/showpass/internal/service"
	"github.com/Eursukkul/showpass/internal/validator"
	"github.com/Eursukkul/showpass/internal/worker"
	"github.com/Eursukkul/showpass/pkg/database"
	"github.com/Eursukkul/showpass/pkg/rabbitmq"
)

type stores struct {
	events      repository.EventRepository
	bookings    repository.BookingRepository
	credentials repository.CredentialRepository
	inventory   ledger.Store
}

func main() {
	envFile := flag.String("env-file", "", "path to a .env file (default ./.env)")
	policyFile := flag.String("policy", "", "path to a YAML pricing policy")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.LoadPolicy(*policyFile); err != nil {
		logrus.Fatalf("failed to load policy: %v", err)
	}
	setupLogging(cfg)

	st, err := openStores(cfg)
	if err != nil {
		logrus.Fatalf("failed to open storage: %v", err)
	}

	clk := clock.NewSystem()

	_, signingKey, generated, err := credential.LoadOrGenerateKeypair(cfg.SigningKeyDir)
	if err != nil {
		logrus.Fatalf("failed to load signing key: %v", err)
	}
	if generated {
		logrus.WithField("dir", cfg.SigningKeyDir).Warn("generated a new credential signing key")
	}
	issuer := credential.NewIssuer(signingKey, st.credentials, clk)

	// Notifications are optional; without RabbitMQ they are skipped.
	var publisher service.Publisher
	var mqConsumer *rabbitmq.Consumer
	if cfg.RabbitURL != "" {
		mqPublisher, err := rabbitmq.NewPublisher(cfg.RabbitURL)
		if err != nil {
			logrus.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		defer mqPublisher.Close()
		publisher = mqPublisher

		mqConsumer, err = rabbitmq.NewConsumer(cfg.RabbitURL)
		if err != nil {
			logrus.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		defer mqConsumer.Close()
	} else {
		logrus.Warn("RABBITMQ_URL not set, catalog sync and notifications disabled")
	}

	var authority payment.Authority
	if cfg.PaymentAuthorityURL != "" {
		authority = payment.NewHTTPAuthority(cfg.PaymentAuthorityURL, cfg.PaymentTimeout)
	} else {
		logrus.Warn("PAYMENT_AUTHORITY_URL not set, memory driver approves every payment confirmation")
		authority = payment.Static{Approve: true}
	}

	inventory := ledger.New(st.inventory, clk, ledger.WithTTL(cfg.ReservationTTL))

	catalogSvc := service.NewCatalogService(st.events)
	bookingSvc := service.NewBookingService(service.Deps{
		Bookings:    st.bookings,
		Events:      st.events,
		Credentials: st.credentials,
		Ledger:      inventory,
		Pricing:     pricing.NewCalculator(cfg.Policy),
		Validator:   validator.New(cfg.Policy.MaxQuantity),
		Payments:    authority,
		Issuer:      issuer,
		Publisher:   publisher,
		Clock:       clk,
	}, service.WithPaymentTimeout(cfg.PaymentTimeout))
	gateway := checkin.NewGateway(st.credentials, issuer, clk, publisher)

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler
	e.Use(middleware.RequestLogger())
	e.Use(echoMw.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "showpass"})
	})

	handler.NewEventHandler(catalogSvc).RegisterRoutes(e.Group("/api/v1/events"))
	handler.NewBookingHandler(bookingSvc).RegisterRoutes(e)
	handler.NewCheckInHandler(gateway).RegisterRoutes(e)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logrus.WithField("port", cfg.ServerPort).Info("showpass starting")
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return worker.NewSweeper(inventory, bookingSvc, cfg.SweepInterval).Run(ctx)
	})

	if mqConsumer != nil {
		msgs, err := mqConsumer.Consume()
		if err != nil {
			logrus.Fatalf("failed to start consuming: %v", err)
		}
		g.Go(func() error {
			return consumer.NewEventConsumer(catalogSvc).Run(ctx, msgs)
		})
	}

	if err := g.Wait(); err != nil {
		logrus.WithError(err).Error("showpass stopped with error")
		os.Exit(1)
	}
	logrus.Info("showpass stopped")
}

func setupLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithField("level", cfg.LogLevel).Warn("unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

func openStores(cfg *config.Config) (*stores, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		logrus.Warn("using in-memory storage, data is lost on restart")
		catalog := memory.NewCatalog()
		return &stores{
			events:      catalog,
			bookings:    memory.NewBookings(),
			credentials: memory.NewCredentials(),
			inventory:   memory.NewInventory(catalog),
		}, nil
	}

	db, err := database.NewPostgresDB(cfg.DSN())
	if err != nil {
		return nil, err
	}
	return &stores{
		events:      repository.NewEventRepository(db),
		bookings:    repository.NewBookingRepository(db),
		credentials: repository.NewCredentialRepository(db),
		inventory:   repository.NewInventoryRepository(db),
	}, nil
}
