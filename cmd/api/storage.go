package main

import (
	"context"

	"github.com/sirupsen/logrus"

	membookingrepo "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/bookingrepo"
	memidempotency "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/idempotency"
	memlocker "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/locker"
	memmemberrepo "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/memberrepo"
	memsessionrepo "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/sessionrepo"
	memtxn "github.com/Overland-East-Bay/class-booking-api/internal/adapters/memory/txn"
	"github.com/Overland-East-Bay/class-booking-api/internal/adapters/postgres"
	pgbookingrepo "github.com/Overland-East-Bay/class-booking-api/internal/adapters/postgres/bookingrepo"
	pgidempotency "github.com/Overland-East-Bay/class-booking-api/internal/adapters/postgres/idempotency"
	pglocker "github.com/Overland-East-Bay/class-booking-api/internal/adapters/postgres/locker"
	pgmemberrepo "github.com/Overland-East-Bay/class-booking-api/internal/adapters/postgres/memberrepo"
	pgsessionrepo "github.com/Overland-East-Bay/class-booking-api/internal/adapters/postgres/sessionrepo"
	"github.com/Overland-East-Bay/class-booking-api/internal/platform/config"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/bookingrepo"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/idempotency"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/locker"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/memberrepo"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/sessionrepo"
	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/txn"
)

type storage struct {
	members  memberrepo.Repository
	sessions sessionrepo.Repository
	bookings bookingrepo.Repository
	locks    locker.Locker
	tx       txn.Manager
	idem     idempotency.Store
	close    func()
}

func openStorage(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (storage, error) {
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{})
		if err != nil {
			return storage{}, err
		}
		if err := postgres.ApplyMigrations(ctx, pool); err != nil {
			pool.Close()
			return storage{}, err
		}
		log.Info("postgres schema up to date")
		return storage{
			members:  pgmemberrepo.NewRepo(pool),
			sessions: pgsessionrepo.NewRepo(pool),
			bookings: pgbookingrepo.NewRepo(pool),
			locks:    pglocker.New(pool),
			tx:       postgres.NewTxManager(pool),
			idem:     pgidempotency.NewStore(pool),
			close:    pool.Close,
		}, nil
	default:
		return storage{
			members:  memmemberrepo.NewRepo(),
			sessions: memsessionrepo.NewRepo(),
			bookings: membookingrepo.NewRepo(),
			locks:    memlocker.New(),
			tx:       memtxn.NewManager(),
			idem:     memidempotency.NewStore(),
			close:    func() {},
		}, nil
	}
}
