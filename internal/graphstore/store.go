// Package graphstore persists the transaction graph behind database/sql.
package graphstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable means the backing database could not be reached.
	// Callers must not retry individual queries against it; the store
	// refuses to construct at all when connectivity cannot be verified.
	ErrUnavailable = errors.New("graph store unavailable")

	// ErrQuery wraps failures of an individual statement.
	ErrQuery = errors.New("graph query failed")
)

// SQLGraphStore implements domain.GraphStore using database/sql.
// Works with both SQLite and PostgreSQL drivers. Every operation
// acquires a dedicated connection from the pool and releases it on all
// exit paths, so a failed query never leaks a session.
type SQLGraphStore struct {
	db     *sql.DB
	driver string
}

// New creates a graph store based on configuration. Connectivity is
// verified before returning; a store that cannot reach its database is
// never handed to callers.
func New(cfg domain.GraphStoreConfig) (domain.GraphStore, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := verify(db, cfg.ConnectRetries); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	store := &SQLGraphStore{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// verify pings the database, retrying transient failures a bounded
// number of times before giving up.
func verify(db *sql.DB, retries int) error {
	if retries < 1 {
		retries = 1
	}

	var err error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
		}
		if err = db.Ping(); err == nil {
			return nil
		}
	}
	return err
}

func (s *SQLGraphStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// session acquires a dedicated connection for one operation. The
// caller must Close it on every exit path.
func (s *SQLGraphStore) session(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return conn, nil
}

// SaveAnalysis stores a scored transaction along with its account,
// device and location nodes. Node upserts are idempotent: an existing
// account is never overwritten by the sparse data on an analyze call.
func (s *SQLGraphStore) SaveAnalysis(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}
	if tx.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	conn, err := s.session(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	accountQuery := `
		INSERT INTO accounts (id) VALUES (?)
		ON CONFLICT(id) DO NOTHING
	`
	if _, err := conn.ExecContext(ctx, s.rebind(accountQuery), tx.UserID); err != nil {
		return fmt.Errorf("%w: upsert account: %v", ErrQuery, err)
	}

	if tx.DeviceID != "" {
		deviceQuery := `
			INSERT INTO devices (id) VALUES (?)
			ON CONFLICT(id) DO NOTHING
		`
		if _, err := conn.ExecContext(ctx, s.rebind(deviceQuery), tx.DeviceID); err != nil {
			return fmt.Errorf("%w: upsert device: %v", ErrQuery, err)
		}
	}

	if tx.Location != "" {
		locationQuery := `
			INSERT INTO locations (name) VALUES (?)
			ON CONFLICT(name) DO NOTHING
		`
		if _, err := conn.ExecContext(ctx, s.rebind(locationQuery), tx.Location); err != nil {
			return fmt.Errorf("%w: upsert location: %v", ErrQuery, err)
		}
	}

	query := `
		INSERT INTO transactions (
			id, amount, timestamp, risk_score, status, type,
			user_id, device_id, location, identity_age_hours, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = conn.ExecContext(ctx, s.rebind(query),
		tx.ID, tx.Amount, tx.Timestamp,
		tx.RiskScore, string(tx.Status), tx.Type,
		tx.UserID, nullString(tx.DeviceID), nullString(tx.Location),
		nullFloat(tx.IdentityAgeHours), tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert transaction: %v", ErrQuery, err)
	}
	return nil
}

// SaveTransfer stores a SENT_TO edge between two accounts. Both
// endpoint accounts are upserted so detection never sees a dangling
// edge.
func (s *SQLGraphStore) SaveTransfer(ctx context.Context, t *domain.Transfer) error {
	if t.FromID == "" || t.ToID == "" {
		return fmt.Errorf("%w: both transfer endpoints are required", ErrInvalidInput)
	}

	conn, err := s.session(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	accountQuery := `
		INSERT INTO accounts (id) VALUES (?)
		ON CONFLICT(id) DO NOTHING
	`
	for _, id := range []string{t.FromID, t.ToID} {
		if _, err := conn.ExecContext(ctx, s.rebind(accountQuery), id); err != nil {
			return fmt.Errorf("%w: upsert account: %v", ErrQuery, err)
		}
	}

	query := `
		INSERT INTO transfers (from_id, to_id, amount, timestamp)
		VALUES (?, ?, ?, ?)
	`
	if _, err := conn.ExecContext(ctx, s.rebind(query), t.FromID, t.ToID, t.Amount, t.Timestamp); err != nil {
		return fmt.Errorf("%w: insert transfer: %v", ErrQuery, err)
	}
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (s *SQLGraphStore) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	conn, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := `
		SELECT id, amount, timestamp, risk_score, status, type,
			   user_id, device_id, location, identity_age_hours, created_at
		FROM transactions
		WHERE id = ?
	`

	tx, err := scanTransaction(conn.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get transaction: %v", ErrQuery, err)
	}
	return tx, nil
}

// ListAccounts retrieves all account nodes.
func (s *SQLGraphStore) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	conn, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := `SELECT id, name, bank, country FROM accounts ORDER BY id`

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list accounts: %v", ErrQuery, err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Bank, &a.Country); err != nil {
			return nil, fmt.Errorf("%w: list accounts: %v", ErrQuery, err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

// ListDevices retrieves all device nodes.
func (s *SQLGraphStore) ListDevices(ctx context.Context) ([]*domain.Device, error) {
	conn, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := `SELECT id, imei FROM devices ORDER BY id`

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list devices: %v", ErrQuery, err)
	}
	defer rows.Close()

	var devices []*domain.Device
	for rows.Next() {
		var d domain.Device
		if err := rows.Scan(&d.ID, &d.IMEI); err != nil {
			return nil, fmt.Errorf("%w: list devices: %v", ErrQuery, err)
		}
		devices = append(devices, &d)
	}
	return devices, rows.Err()
}

// RecentTransactions retrieves the most recent transactions, newest
// first.
func (s *SQLGraphStore) RecentTransactions(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	conn, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := `
		SELECT id, amount, timestamp, risk_score, status, type,
			   user_id, device_id, location, identity_age_hours, created_at
		FROM transactions
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := conn.QueryContext(ctx, s.rebind(query), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent transactions: %v", ErrQuery, err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// HighRiskTransactions retrieves transactions whose score is strictly
// above the threshold, riskiest first.
func (s *SQLGraphStore) HighRiskTransactions(ctx context.Context, threshold float64) ([]*domain.Transaction, error) {
	conn, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := `
		SELECT id, amount, timestamp, risk_score, status, type,
			   user_id, device_id, location, identity_age_hours, created_at
		FROM transactions
		WHERE risk_score > ?
		ORDER BY risk_score DESC
	`

	rows, err := conn.QueryContext(ctx, s.rebind(query), threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: high risk transactions: %v", ErrQuery, err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// TransfersAbove retrieves all SENT_TO edges with amount strictly above
// the floor.
func (s *SQLGraphStore) TransfersAbove(ctx context.Context, floor float64) ([]domain.Transfer, error) {
	conn, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := `
		SELECT from_id, to_id, amount, timestamp
		FROM transfers
		WHERE amount > ?
	`

	rows, err := conn.QueryContext(ctx, s.rebind(query), floor)
	if err != nil {
		return nil, fmt.Errorf("%w: transfers above: %v", ErrQuery, err)
	}
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		var t domain.Transfer
		if err := rows.Scan(&t.FromID, &t.ToID, &t.Amount, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: transfers above: %v", ErrQuery, err)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// DashboardCounts aggregates over the full transaction set. Every sum
// is coalesced so an empty graph yields zeros, never NULLs.
func (s *SQLGraphStore) DashboardCounts(ctx context.Context, highRiskThreshold float64) (*domain.StatsRow, error) {
	conn, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := `
		SELECT COUNT(*),
			   COALESCE(SUM(amount), 0),
			   COALESCE(SUM(CASE WHEN risk_score > ? THEN 1 ELSE 0 END), 0),
			   COALESCE(SUM(CASE WHEN status = 'BLOCKED' THEN 1 ELSE 0 END), 0),
			   COALESCE(SUM(CASE WHEN status = 'BLOCKED' THEN amount ELSE 0 END), 0)
		FROM transactions
	`

	var row domain.StatsRow
	err = conn.QueryRowContext(ctx, s.rebind(query), highRiskThreshold).Scan(
		&row.TotalTransactions, &row.TotalAmount,
		&row.HighRiskCount, &row.BlockedCount, &row.BlockedAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: dashboard counts: %v", ErrQuery, err)
	}
	return &row, nil
}

// Ping checks database connectivity.
func (s *SQLGraphStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLGraphStore) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLGraphStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var status string
	var deviceID, location sql.NullString
	var identityAge sql.NullFloat64

	err := row.Scan(
		&tx.ID, &tx.Amount, &tx.Timestamp,
		&tx.RiskScore, &status, &tx.Type,
		&tx.UserID, &deviceID, &location, &identityAge, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Status = domain.Status(status)
	tx.DeviceID = deviceID.String
	tx.Location = location.String
	if identityAge.Valid {
		age := identityAge.Float64
		tx.IdentityAgeHours = &age
	}
	return &tx, nil
}

func collectTransactions(rows *sql.Rows) ([]*domain.Transaction, error) {
	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQuery, err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
