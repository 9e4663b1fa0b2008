package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/config"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memory"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/postgres"
)

type stores struct {
	appointments  storage.AppointmentStore
	notifications storage.NotificationStore
	users         storage.UserStore
	// pool is nil for the memory driver.
	pool  *db.Pool
	ready func(context.Context) error
}

func (s *stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		users, err := demoUsers()
		if err != nil {
			return nil, err
		}
		logger.Warn("using in-memory store; data is lost on restart")
		return &stores{
			appointments:  memory.NewAppointments(time.Now),
			notifications: memory.NewNotifications(time.Now),
			users:         users,
			ready:         func(context.Context) error { return nil },
		}, nil

	case config.StorePostgres:
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: cfg.DBMaxConns})
		if err != nil {
			return nil, fmt.Errorf("db connection failed: %w", err)
		}
		if cfg.DatabaseMigrate {
			if err := postgres.Migrate(ctx, pool, logger); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &stores{
			appointments:  postgres.NewAppointmentRepository(pool, outboxFor(cfg)),
			notifications: postgres.NewNotificationRepository(pool),
			users:         postgres.NewUserRepository(pool),
			pool:          pool,
			ready:         db.ReadyCheck(pool),
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// outboxFor returns the event outbox, or nil when no Kafka brokers are configured. Without a
// publisher draining it the table would only grow.
func outboxFor(cfg config.Config) *outbox.Repository {
	if cfg.KafkaBrokers == "" {
		return nil
	}
	return outbox.NewRepository()
}

// demoUsers seeds the memory driver with one provider and two clients sharing the password "password".
func demoUsers() (*memory.Users, error) {
	hash, err := auth.HashPassword("password")
	if err != nil {
		return nil, err
	}
	return memory.NewUsers(
		model.User{ID: "11111111-1111-1111-1111-111111111111", Name: "Dr. Ada Lovelace", Email: "ada@example.com", PasswordHash: hash, Provider: true},
		model.User{ID: "22222222-2222-2222-2222-222222222222", Name: "Jane Doe", Email: "jane@example.com", PasswordHash: hash},
		model.User{ID: "33333333-3333-3333-3333-333333333333", Name: "John Roe", Email: "john@example.com", PasswordHash: hash},
	), nil
}
