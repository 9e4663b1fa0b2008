package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

const userColumns = `id::text, name, email, password_hash, provider`

// UserRepository stores accounts; providers are users with the provider flag set.
type UserRepository struct {
	pool *db.Pool
}

var _ storage.UserStore = (*UserRepository)(nil)

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	created, err := scanUser(r.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, password_hash, provider)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Provider))
	if isUniqueViolation(err, userEmailConstraint) {
		return model.User{}, storage.ErrEmailTaken
	}
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (model.User, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getOne(ctx, `WHERE lower(email) = lower($1)`, email)
}

func (r *UserRepository) ListProviders(ctx context.Context, p model.Page) ([]model.User, error) {
	p = p.Normalize()
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE provider
		ORDER BY name, id
		LIMIT $1 OFFSET $2
	`, p.Size, p.Offset())
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return users, nil
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users `+where, arg))
	if isMissing(err) {
		return model.User{}, storage.ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Provider)
	return u, err
}
