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
	"github.com/mmeshcher/topup-system/internal/model"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим именем.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrDepositNotFound возвращается, если заявка на пополнение не найдена.
	ErrDepositNotFound = errors.New("deposit not found")
	// ErrDepositFinalized возвращается при попытке повторно обработать заявку,
	// уже находящуюся в конечном статусе.
	ErrDepositFinalized = errors.New("deposit already finalized")
	// ErrOrderExists возвращается, если заказ с таким идентификатором уже создан.
	ErrOrderExists = errors.New("order already exists")
	// ErrInsufficientBalance возвращается при покупке на сумму, превышающую баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
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

	r := &PostgresRepository{pool: pool}

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

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраим конфликты сериализации и дедлоки: проигравшая транзакция
		// перечитает строку заявки и увидит уже проставленный конечный статус.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
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

// CreateUser создаёт новый аккаунт пользователя с нулевым балансом.
func (r *PostgresRepository) CreateUser(ctx context.Context, username string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username) VALUES ($1) RETURNING id`,
		username,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, username)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByUsername возвращает пользователя по имени.
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, balance, created_at FROM users WHERE username = $1`,
		username,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Balance, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetBalance возвращает текущий баланс пользователя в минорных единицах.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`SELECT balance FROM users WHERE id = $1`,
		userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// CreateDeposit сохраняет новую заявку на пополнение в статусе Pending.
func (r *PostgresRepository) CreateDeposit(ctx context.Context, userID, amount int64, method model.PaymentMethod, reference string) (*model.Deposit, error) {
	d := model.Deposit{
		UserID:    userID,
		Amount:    amount,
		Method:    method,
		Reference: reference,
		Status:    model.DepositStatusPending,
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO deposits (user_id, amount, method, reference, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		userID, amount, string(method), reference, string(model.DepositStatusPending),
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, fmt.Errorf("%w: id %d", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("insert deposit: %w", err)
	}

	return &d, nil
}

const depositColumns = `id, user_id, amount, method, reference, status, created_at, updated_at`

func scanDeposit(row pgx.Row) (*model.Deposit, error) {
	var (
		d      model.Deposit
		method string
		status string
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.Amount, &method, &d.Reference, &status, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Method = model.PaymentMethod(method)
	d.Status = model.DepositStatus(status)
	return &d, nil
}

// GetDeposit возвращает заявку на пополнение по идентификатору.
func (r *PostgresRepository) GetDeposit(ctx context.Context, id int64) (*model.Deposit, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE id = $1`,
		id,
	)

	d, err := scanDeposit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepositNotFound
		}
		return nil, fmt.Errorf("get deposit: %w", err)
	}

	return d, nil
}

func (r *PostgresRepository) queryDeposits(ctx context.Context, query string, args ...any) ([]model.Deposit, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select deposits: %w", err)
	}
	defer rows.Close()

	var deposits []model.Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deposit: %w", err)
		}
		deposits = append(deposits, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return deposits, nil
}

// GetDepositsByUser возвращает историю заявок пользователя, новые записи первыми.
func (r *PostgresRepository) GetDepositsByUser(ctx context.Context, userID int64) ([]model.Deposit, error) {
	return r.queryDeposits(ctx,
		`SELECT `+depositColumns+`
		 FROM deposits
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
}

// GetDeposits возвращает заявки для административной проверки,
// при необходимости отфильтрованные по статусу. Новые записи первыми.
func (r *PostgresRepository) GetDeposits(ctx context.Context, status *model.DepositStatus) ([]model.Deposit, error) {
	if status == nil {
		return r.queryDeposits(ctx,
			`SELECT `+depositColumns+` FROM deposits ORDER BY created_at DESC`,
		)
	}

	return r.queryDeposits(ctx,
		`SELECT `+depositColumns+`
		 FROM deposits
		 WHERE status = $1
		 ORDER BY created_at DESC`,
		string(*status),
	)
}

// DecideDeposit переводит заявку из Pending в конечный статус и при одобрении
// зачисляет сумму на баланс владельца. Обе записи фиксируются одной транзакцией,
// повторная обработка завершается ErrDepositFinalized. Конфликты сериализации
// ретраятся, после чего проигравший вызов видит конечный статус.
func (r *PostgresRepository) DecideDeposit(ctx context.Context, id int64, decision model.DepositDecision) (*model.Deposit, error) {
	var d *model.Deposit
	err := r.withRetry(ctx, func() error {
		var txErr error
		d, txErr = r.decideDeposit(ctx, id, decision)
		return txErr
	})
	return d, err
}

func (r *PostgresRepository) decideDeposit(ctx context.Context, id int64, decision model.DepositDecision) (*model.Deposit, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем строку заявки: конкурирующие решения по одной заявке
	// сериализуются здесь, второй вызов увидит уже конечный статус.
	row := tx.QueryRow(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`,
		id,
	)

	d, err := scanDeposit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepositNotFound
		}
		return nil, fmt.Errorf("lock deposit: %w", err)
	}

	if d.Status != model.DepositStatusPending {
		return nil, fmt.Errorf("%w: status %s", ErrDepositFinalized, d.Status)
	}

	if decision == model.DecisionApprove {
		cmdTag, err := tx.Exec(ctx,
			`UPDATE users SET balance = balance + $1 WHERE id = $2`,
			d.Amount, d.UserID,
		)
		if err != nil {
			return nil, fmt.Errorf("credit balance: %w", err)
		}
		if cmdTag.RowsAffected() != 1 {
			return nil, fmt.Errorf("%w: id %d", ErrUserNotFound, d.UserID)
		}
	}

	// Переход статуса обусловлен прежним значением Pending, а не слепой записью.
	newStatus := decision.TerminalStatus()
	err = tx.QueryRow(ctx,
		`UPDATE deposits SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = $3
		 RETURNING updated_at`,
		id, string(newStatus), string(model.DepositStatusPending),
	).Scan(&d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepositFinalized
		}
		return nil, fmt.Errorf("update deposit status: %w", err)
	}
	d.Status = newStatus

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return d, nil
}

// CreatePurchase создаёт покупку и списывает её стоимость с баланса пользователя.
// Строка пользователя блокируется для сериализации списаний, превышающих баланс.
func (r *PostgresRepository) CreatePurchase(ctx context.Context, p *model.Purchase) (*model.Purchase, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT balance FROM users WHERE id = $1 FOR UPDATE`,
		p.UserID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user for update: %w", err)
	}

	if balance < p.Price {
		return nil, ErrInsufficientBalance
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET balance = balance - $1 WHERE id = $2`,
		p.Price, p.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("debit balance: %w", err)
	}

	created := *p
	created.Status = model.PurchaseStatusPending

	err = tx.QueryRow(ctx,
		`INSERT INTO purchases (order_id, user_id, service, price, target_id, zone, type, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		p.OrderID, p.UserID, p.Service, p.Price, p.TargetID, p.Zone,
		string(p.Type), string(model.PurchaseStatusPending),
	).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: %s", ErrOrderExists, p.OrderID)
		}
		return nil, fmt.Errorf("insert purchase: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &created, nil
}

const purchaseColumns = `id, order_id, user_id, service, price, target_id, zone, type, status, provider_order_id, created_at, updated_at`

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	var (
		p      model.Purchase
		ptype  string
		status string
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Service, &p.Price, &p.TargetID,
		&p.Zone, &ptype, &status, &p.ProviderOrderID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Type = model.PurchaseType(ptype)
	p.Status = model.PurchaseStatus(status)
	return &p, nil
}

func (r *PostgresRepository) queryPurchases(ctx context.Context, query string, args ...any) ([]model.Purchase, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select purchases: %w", err)
	}
	defer rows.Close()

	var purchases []model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return purchases, nil
}

// GetPurchasesByUser возвращает историю покупок пользователя, новые записи первыми.
func (r *PostgresRepository) GetPurchasesByUser(ctx context.Context, userID int64) ([]model.Purchase, error) {
	return r.queryPurchases(ctx,
		`SELECT `+purchaseColumns+`
		 FROM purchases
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
}

// GetPurchases возвращает покупки для административной проверки,
// при необходимости отфильтрованные по имени пользователя.
func (r *PostgresRepository) GetPurchases(ctx context.Context, username string) ([]model.Purchase, error) {
	if username == "" {
		return r.queryPurchases(ctx,
			`SELECT `+purchaseColumns+` FROM purchases ORDER BY created_at DESC`,
		)
	}

	return r.queryPurchases(ctx,
		`SELECT p.id, p.order_id, p.user_id, p.service, p.price, p.target_id,
		        p.zone, p.type, p.status, p.provider_order_id, p.created_at, p.updated_at
		 FROM purchases p
		 JOIN users u ON u.id = p.user_id
		 WHERE u.username = $1
		 ORDER BY p.created_at DESC`,
		username,
	)
}

// GetPurchasesForFulfillment возвращает покупки, ожидающие статуса от провайдера.
func (r *PostgresRepository) GetPurchasesForFulfillment(ctx context.Context, limit int) ([]model.Purchase, error) {
	return r.queryPurchases(ctx,
		`SELECT `+purchaseColumns+`
		 FROM purchases
		 WHERE status = $1
		 ORDER BY created_at
		 LIMIT $2`,
		string(model.PurchaseStatusPending),
		limit,
	)
}

// UpdatePurchaseStatus обновляет статус покупки и идентификатор заказа у провайдера.
func (r *PostgresRepository) UpdatePurchaseStatus(ctx context.Context, orderID string, status model.PurchaseStatus, providerOrderID string) error {
	if providerOrderID == "" {
		_, err := r.pool.Exec(ctx,
			`UPDATE purchases SET status = $2, updated_at = now() WHERE order_id = $1`,
			orderID, string(status),
		)
		if err != nil {
			return fmt.Errorf("update purchase: %w", err)
		}
		return nil
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE purchases SET status = $2, provider_order_id = $3, updated_at = now() WHERE order_id = $1`,
		orderID, string(status), providerOrderID,
	)
	if err != nil {
		return fmt.Errorf("update purchase: %w", err)
	}

	return nil
}
