// Package app assembles the wallet and ledger roles from configuration.
package app

import (
	"context"  // Cancellation and deadlines
	"errors"   // Error wrapping
	"fmt"      // String formatting
	"net/http" // HTTP status codes
	"sync"     // Locks and wait groups
	"time"     // Time durations

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Structured logging
	"gorm.io/gorm"                 // GORM ORM library

	"wallet_saga/internal/config" // Configuration
	"wallet_saga/internal/events" // Event bus
	"wallet_saga/internal/ledger" // Transaction ledger
	"wallet_saga/internal/notify" // OTP delivery
	"wallet_saga/internal/otp"    // OTP service
	"wallet_saga/internal/users"  // User profiles
	"wallet_saga/internal/wallet" // Wallet service
)

// Bus both publishes and subscribes
type Bus interface {
	events.Publisher
	events.Subscriber
}

// Deps are the connections and collaborators built outside the app
type Deps struct {
	DB          *gorm.DB
	Redis       redis.Cmdable          // required by the redis event backend and OTP store
	Sender      notify.Sender          // defaults to a breaker around the log sender
	Bus         Bus                    // overrides the configured event backend
	Now         func() time.Time       // defaults to time.Now
	GenerateOtp func() (string, error) // defaults to otp.GenerateCode
}

type App struct {
	cfg    *config.Config
	log    *logrus.Entry
	router *gin.Engine

	users   *users.Directory
	wallets *wallet.Service
	ledger  *ledger.Service
	otp     *otp.Service
	sweeper *ledger.Sweeper

	redisBuses []*events.RedisBus

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config, deps Deps, log *logrus.Entry) (*App, error) {
	if deps.DB == nil {
		return nil, errors.New("app: database is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Bus == nil && cfg.Events.Backend == "redis" && deps.Redis == nil {
		return nil, errors.New("app: redis event backend without a redis client")
	}

	a := &App{
		cfg:   cfg,
		log:   log,
		users: users.NewDirectory(deps.DB),
	}

	var memory *events.MemoryBus
	busFor := func(role string) Bus {
		switch {
		case deps.Bus != nil:
			return deps.Bus
		case cfg.Events.Backend == "memory":
			if memory == nil {
				memory = events.NewMemoryBus(log, cfg.Events.MaxDeliveries)
			}
			return memory
		default:
			b := events.NewRedisBus(deps.Redis, events.RedisOptions{
				Prefix:        cfg.Events.Prefix,
				Group:         role, // one consumer group per role
				Consumer:      cfg.Events.ConsumerName(),
				Workers:       cfg.Events.Workers,
				Block:         cfg.Events.Block,
				MaxDeliveries: cfg.Events.MaxDeliveries,
				RetryDelay:    cfg.Events.RetryDelay,
			}, log)
			a.redisBuses = append(a.redisBuses, b)
			return b
		}
	}

	if cfg.Runs(config.RoleWallet) {
		bus := busFor(config.RoleWallet)
		repo := wallet.NewGormRepository(deps.DB)
		a.wallets = wallet.NewService(repo, a.users, bus, wallet.ServiceOptions{FallbackEmail: cfg.FallbackEmail}, log)
		consumer := wallet.NewConsumer(repo, bus, log)
		bus.Subscribe(events.TopicOtpVerified, events.Handle(consumer.OnOtpVerified))
	}

	if cfg.Runs(config.RoleLedger) {
		bus := busFor(config.RoleLedger)
		repo := ledger.NewGormRepository(deps.DB)
		a.ledger = ledger.NewService(repo, log)

		var store otp.Store
		if cfg.Otp.Store == "redis" {
			if deps.Redis == nil {
				return nil, errors.New("app: redis OTP store without a redis client")
			}
			store = otp.NewRedisStore(deps.Redis)
		} else {
			store = otp.NewMemoryStore(deps.Now)
		}
		sender := deps.Sender
		if sender == nil {
			sender = notify.NewBreakerSender(notify.NewLogSender(log), notify.BreakerSettings{Name: "otp-mail"}, log)
		}
		a.otp = otp.NewService(store, a.ledger, sender, bus, otp.Options{
			TTL:         cfg.Otp.TTL,
			MaxAttempts: cfg.Otp.MaxAttempts,
			HashCost:    cfg.Otp.HashCost,
			Now:         deps.Now,
			Generate:    deps.GenerateOtp,
		}, log)

		consumer := ledger.NewConsumer(repo, a.ledger, a.otp, ledger.ConsumerOptions{
			Users:         a.users,
			FallbackEmail: cfg.FallbackEmail,
			Now:           deps.Now,
		}, log)
		bus.Subscribe(events.TopicTransactionCreated, events.Handle(consumer.OnTransactionCreated))
		bus.Subscribe(events.TopicTransactionCompleted, events.Handle(consumer.OnTransactionCompleted))
		a.sweeper = ledger.NewSweeper(repo, cfg.Sweeper.Window, deps.Now, log)
	}

	router, err := a.newRouter()
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	a.router = router
	return a, nil
}

// Router returns the HTTP handler of the enabled roles
func (a *App) Router() http.Handler {
	return a.router
}

// Start runs the event consumers and the sweeper loop until Stop
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	for _, b := range a.redisBuses {
		if err := b.Start(ctx); err != nil {
			a.cancel()
			return fmt.Errorf("start event consumers: %w", err)
		}
	}
	if a.sweeper != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.sweeper.Run(ctx, a.cfg.Sweeper.Interval)
		}()
	}
	a.log.WithField("role", a.cfg.Server.Role).Info("Application started")
	return nil
}

// Stop ends the background work and waits for in-flight handlers
func (a *App) Stop() {
	if a.cancel == nil {
		return
	}
	a.cancel()
	a.cancel = nil
	for _, b := range a.redisBuses {
		b.Stop()
	}
	a.wg.Wait()
	a.log.Info("Shutting down application")
}
