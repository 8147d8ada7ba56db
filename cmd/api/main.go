package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Overland-East-Bay/class-booking-api/internal/adapters/httpapi"
	"github.com/Overland-East-Bay/class-booking-api/internal/adapters/watermill/notify"
	"github.com/Overland-East-Bay/class-booking-api/internal/app/bookings"
	"github.com/Overland-East-Bay/class-booking-api/internal/app/members"
	"github.com/Overland-East-Bay/class-booking-api/internal/app/sessions"
	platformclock "github.com/Overland-East-Bay/class-booking-api/internal/platform/clock"
	"github.com/Overland-East-Bay/class-booking-api/internal/platform/config"
	"github.com/Overland-East-Bay/class-booking-api/internal/platform/telemetry"
)

const (
	serviceName   = "class-booking-api"
	consumerGroup = "class-booking-api.notifications"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	log.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("api stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.WithError(err).Warn("flushing traces")
		}
	}()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	wmLogger := notify.NewLogger(log)
	backend, err := openNotifyBackend(cfg, wmLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.WithError(err).Warn("closing notification backend")
		}
	}()

	router, err := notify.NewRouter(notify.RouterDeps{
		Subscriber: backend.Subscriber,
		Deliverer:  notify.LogDeliverer{Log: log.WithField("component", "notify")},
		Logger:     wmLogger,
	})
	if err != nil {
		return err
	}

	clk := platformclock.NewSystem()
	bookingSvc := bookings.NewService(bookings.Deps{
		Members:          store.members,
		Sessions:         store.sessions,
		Bookings:         store.bookings,
		Locks:            store.locks,
		Tx:               store.tx,
		Sink:             notify.NewSink(backend.Publisher),
		Clock:            clk,
		Logger:           log,
		RefundExpiryDays: cfg.CreditRefundExpiryDays,
	})
	memberSvc := members.NewService(store.members, store.tx, clk, log)
	sessionSvc := sessions.NewService(store.sessions, clk, log)

	api := httpapi.NewServer(memberSvc, sessionSvc, bookingSvc, store.idem, log)
	var opts httpapi.RouterOptions
	if cfg.ReserveRatePerSecond > 0 {
		opts.ReserveLimiter = rate.NewLimiter(rate.Limit(cfg.ReserveRatePerSecond), cfg.ReserveBurst)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpapi.NewRouterWithOptions(api, opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Run(ctx)
	})
	g.Go(func() error {
		// Serve only once the subscribers are attached; gochannel drops
		// messages published before that.
		select {
		case <-router.Running():
		case <-ctx.Done():
			return nil
		}
		log.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"storage": cfg.StorageBackend,
			"notify":  cfg.NotifyBackend,
		}).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return router.Close()
	})
	return g.Wait()
}

func openNotifyBackend(cfg config.Config, logger watermill.LoggerAdapter) (notify.Backend, error) {
	switch cfg.NotifyBackend {
	case config.NotifyRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return notify.NewRedisStream(client, consumerGroup, logger)
	default:
		return notify.NewInProcess(logger), nil
	}
}
