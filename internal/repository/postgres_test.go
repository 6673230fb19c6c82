package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mmeshcher/basket-service/internal/model"
)

func setupTestDB(t *testing.T) *PostgresRepository {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	repo, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

var errUserExists = errors.New("user already exists")

// createUser добавляет пользователя с начальным балансом в обход сидов.
func (r *PostgresRepository) createUser(ctx context.Context, name string, balance decimal.Decimal) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, balance) VALUES ($1, $2::numeric) RETURNING id`,
		name, balance.String(),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", errUserExists, name)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

func lineItem(id string, count int, price string) model.LineItem {
	return model.LineItem{
		ProductID:   id,
		ProductName: "product " + id,
		Count:       count,
		Price:       decimal.RequireFromString(price),
	}
}

func TestPostgresRepository(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	t.Run("seeded users", func(t *testing.T) {
		u, err := repo.GetUserByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Sophie", u.Name)
		assert.True(t, u.Balance.Equal(decimal.NewFromInt(100)), "balance = %s", u.Balance)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := repo.GetUserByID(ctx, 999999)
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = repo.CreateOrder(ctx, 999999, []model.LineItem{lineItem("1-2-3-4-5-6", 1, "10")})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("duplicate user", func(t *testing.T) {
		_, err := repo.createUser(ctx, "Sophie", decimal.Zero)
		assert.ErrorIs(t, err, errUserExists)
	})

	t.Run("create order debits balance", func(t *testing.T) {
		userID, err := repo.createUser(ctx, "checkout-user", decimal.NewFromInt(200))
		require.NoError(t, err)

		items := []model.LineItem{
			lineItem("1-2-3-4-5-6", 2, "25.50"),
			lineItem("6-5-4-3-2-1", 1, "49"),
		}
		order, err := repo.CreateOrder(ctx, userID, items)
		require.NoError(t, err)
		assert.NotZero(t, order.ID)
		assert.True(t, order.Total.Equal(decimal.NewFromInt(100)), "total = %s", order.Total)

		u, err := repo.GetUserByID(ctx, userID)
		require.NoError(t, err)
		assert.True(t, u.Balance.Equal(decimal.NewFromInt(100)), "balance = %s", u.Balance)

		got, err := repo.GetOrder(ctx, userID, order.ID)
		require.NoError(t, err)
		require.Len(t, got.Items, 2)
		assert.Equal(t, "1-2-3-4-5-6", got.Items[0].ProductID)
		assert.True(t, got.Items[0].Price.Equal(decimal.RequireFromString("25.50")))

		_, err = repo.GetOrder(ctx, 1, order.ID)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("insufficient balance leaves no order", func(t *testing.T) {
		userID, err := repo.createUser(ctx, "poor-user", decimal.NewFromInt(20))
		require.NoError(t, err)

		_, err = repo.CreateOrder(ctx, userID, []model.LineItem{lineItem("1-2-3-4-5-6", 1, "30")})
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		orders, err := repo.GetOrdersByUser(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, orders)

		u, err := repo.GetUserByID(ctx, userID)
		require.NoError(t, err)
		assert.True(t, u.Balance.Equal(decimal.NewFromInt(20)))
	})

	t.Run("orders most recent first", func(t *testing.T) {
		userID, err := repo.createUser(ctx, "history-user", decimal.NewFromInt(500))
		require.NoError(t, err)

		first, err := repo.CreateOrder(ctx, userID, []model.LineItem{lineItem("1-1-1-1-1-1", 1, "10")})
		require.NoError(t, err)
		second, err := repo.CreateOrder(ctx, userID, []model.LineItem{lineItem("2-2-2-2-2-2", 1, "20")})
		require.NoError(t, err)

		orders, err := repo.GetOrdersByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, second.ID, orders[0].ID)
		assert.Equal(t, first.ID, orders[1].ID)
		assert.Len(t, orders[0].Items, 1)
	})

	t.Run("concurrent debits never overdraw", func(t *testing.T) {
		userID, err := repo.createUser(ctx, "race-user", decimal.NewFromInt(100))
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.CreateOrder(ctx, userID, []model.LineItem{lineItem("1-2-3-4-5-6", 1, "60")})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)

		u, err := repo.GetUserByID(ctx, userID)
		require.NoError(t, err)
		assert.True(t, u.Balance.Equal(decimal.NewFromInt(40)), "balance = %s", u.Balance)
	})
}
