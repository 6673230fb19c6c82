// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/basket-service/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserNotFound возвращается, если пользователь не найден.
var (
	ErrUserNotFound = errors.New("user not found")
	// ErrOrderNotFound возвращается, если заказ не найден у пользователя.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInsufficientBalance возвращается при попытке списания суммы, превышающей баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// PostgresRepository предоставляет доступ к балансам пользователей и заказам в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет чтения при конфликтах транзакций и обрывах соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	return r.retry(ctx, isRetryable, fn)
}

// withTxRetry повторяет транзакцию только при сериализационном конфликте или взаимоблокировке.
// Обрыв соединения не повторяется: исход фиксации в этом случае неизвестен.
func (r *PostgresRepository) withTxRetry(ctx context.Context, fn func() error) error {
	return r.retry(ctx, isTxConflict, fn)
}

func (r *PostgresRepository) retry(ctx context.Context, retryable func(error) bool, fn func() error) error {
	var err error

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !retryable(err) || i == len(r.delays) {
			break
		}

		timer := time.NewTimer(r.delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTxConflict(err)
	}
	return isConnectionError(err)
}

func isTxConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return false
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Ping проверяет доступность базы данных.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// GetUserByID возвращает пользователя и его текущий баланс.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var (
		u       model.User
		balance string
	)
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, name, balance::text FROM users WHERE id = $1`,
			id,
		).Scan(&u.ID, &u.Name, &balance)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	u.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}

	return &u, nil
}

// CreateOrder в одной транзакции сохраняет заказ с позициями и списывает его сумму с баланса.
// Строка пользователя блокируется, поэтому параллельные списания не превышают баланс.
func (r *PostgresRepository) CreateOrder(ctx context.Context, userID int64, items []model.LineItem) (*model.Order, error) {
	var order *model.Order
	err := r.withTxRetry(ctx, func() error {
		var err error
		order, err = r.createOrderTx(ctx, userID, items)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *PostgresRepository) createOrderTx(ctx context.Context, userID int64, items []model.LineItem) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var balanceText string
	err = tx.QueryRow(ctx, `SELECT balance::text FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balanceText)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user for update: %w", err)
	}

	balance, err := decimal.NewFromString(balanceText)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}

	total := model.TotalCost(items)
	if total.GreaterThan(balance) {
		return nil, ErrInsufficientBalance
	}

	order := &model.Order{
		UserID: userID,
		Total:  total,
		Items:  items,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (user_id, total) VALUES ($1, $2::numeric) RETURNING id, order_date`,
		userID, total.String(),
	).Scan(&order.ID, &order.OrderDate)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(
			`INSERT INTO order_items (order_id, product_id, product_name, count, price) VALUES ($1, $2, $3, $4, $5::numeric)`,
			order.ID, it.ProductID, it.ProductName, it.Count, it.Price.String(),
		)
	}
	br := tx.SendBatch(ctx, batch)
	for range items {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return nil, fmt.Errorf("insert order item: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("close batch: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET balance = balance - $2::numeric WHERE id = $1`,
		userID, total.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("debit balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return order, nil
}

// GetOrdersByUser возвращает заказы пользователя, начиная с самого нового, вместе с позициями.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, total::text, order_date
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY order_date DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// GetOrder возвращает заказ пользователя по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, total::text, order_date FROM orders WHERE id = $1 AND user_id = $2`,
		orderID, userID,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	orders := []model.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return &orders[0], nil
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o     model.Order
		total string
	)
	if err := row.Scan(&o.ID, &o.UserID, &total, &o.OrderDate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, err
		}
		return model.Order{}, fmt.Errorf("scan order: %w", err)
	}

	var err error
	o.Total, err = decimal.NewFromString(total)
	if err != nil {
		return model.Order{}, fmt.Errorf("parse order total: %w", err)
	}
	return o, nil
}

func (r *PostgresRepository) attachItems(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids = append(ids, o.ID)
		index[o.ID] = i
		orders[i].Items = []model.LineItem{}
	}

	rows, err := r.pool.Query(ctx,
		`SELECT order_id, product_id, product_name, count, price::text
		 FROM order_items
		 WHERE order_id = ANY($1)
		 ORDER BY id`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			it      model.LineItem
			price   string
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.ProductName, &it.Count, &price); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		it.Price, err = decimal.NewFromString(price)
		if err != nil {
			return fmt.Errorf("parse item price: %w", err)
		}

		i := index[orderID]
		orders[i].Items = append(orders[i].Items, it)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}
