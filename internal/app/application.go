package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bidwire/auction/internal/app/system"
	"github.com/bidwire/auction/internal/bidding"
	"github.com/bidwire/auction/internal/broadcast"
	"github.com/bidwire/auction/internal/lock"
	lockmemory "github.com/bidwire/auction/internal/lock/memory"
	"github.com/bidwire/auction/internal/products"
	"github.com/bidwire/auction/internal/settlement"
	"github.com/bidwire/auction/internal/storage"
	storagememory "github.com/bidwire/auction/internal/storage/memory"
	"github.com/bidwire/auction/internal/store"
	storememory "github.com/bidwire/auction/internal/store/memory"
	"github.com/bidwire/auction/pkg/logger"
)

// Deps encapsulates the infrastructure dependencies. Nil fields default to
// the in-memory implementations, which is what tests and single-node
// development use.
type Deps struct {
	Locker    lock.Locker
	Ephemeral store.Store
	Auctions  storage.AuctionStore
	Users     storage.UserStore
	Publisher broadcast.Publisher

	LockWait      time.Duration
	LockHold      time.Duration
	SweepInterval time.Duration
}

// Application ties the auction services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Bidding     *bidding.Service
	Settlement  *settlement.Sweeper
	Products    *products.Service
	Broadcaster *broadcast.Broadcaster
	Users       storage.UserStore
}

// New builds a fully initialised application with the provided dependencies.
func New(deps Deps, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	if deps.Auctions == nil || deps.Users == nil {
		mem := storagememory.New()
		if deps.Auctions == nil {
			deps.Auctions = mem
		}
		if deps.Users == nil {
			deps.Users = mem
		}
	}
	if deps.Ephemeral == nil {
		deps.Ephemeral = storememory.New()
	}
	if deps.Locker == nil {
		deps.Locker = lockmemory.New()
	}

	broadcaster := broadcast.New(deps.Ephemeral, deps.Auctions, deps.Users, deps.Publisher, log)

	var bidOpts []bidding.Option
	if deps.LockWait > 0 || deps.LockHold > 0 {
		bidOpts = append(bidOpts, bidding.WithLockTimings(deps.LockWait, deps.LockHold))
	}
	bidService := bidding.New(deps.Locker, deps.Ephemeral, deps.Auctions, broadcaster, log, bidOpts...)

	sweeper := settlement.New(deps.Auctions, deps.Users, deps.Ephemeral, broadcaster, log)
	if deps.SweepInterval > 0 {
		sweeper.WithInterval(deps.SweepInterval)
	}

	productService := products.New(deps.Auctions, deps.Ephemeral, broadcaster, log)

	manager := system.NewManager()
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register sweeper: %w", err)
	}

	return &Application{
		manager:     manager,
		log:         log,
		Bidding:     bidService,
		Settlement:  sweeper,
		Products:    productService,
		Broadcaster: broadcaster,
		Users:       deps.Users,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(svc system.Service) error {
	return a.manager.Register(svc)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services, letting an in-flight settlement sweep finish.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
