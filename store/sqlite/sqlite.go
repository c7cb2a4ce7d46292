/*
Package sqlite provides the SQLite-backed implementation of the ledger
storage interface plus the small supporting tables the admin API needs
(users for actor resolution, delivery stops for the producer workflow).

INTERFACES IMPLEMENTED:
  ledger.Store: entry persistence, clearing, voiding, refund sums

APPEND-MOSTLY ENFORCEMENT:
  - amount, from_account and to_account are never updated
  - the only UPDATE statements flip cleared or voided flags
  - external "delete" is a void tombstone; rows are never removed

KEY TABLES:
  ledger_entries: the entry stream, the only financial truth
  users:          actor registry (created_by resolution, name search)
  deliveries:     delivery stops; marking one delivered produces an entry

CONCURRENCY:
  sync.RWMutex around the handle, WAL mode for concurrent readers.
  Bulk clearing is a single set-based UPDATE so a reconciliation scan
  never observes a half-cleared batch. WithTx scopes read-check-write
  sequences (refunds) to one database transaction.

USAGE:
  store, err := sqlite.New("./data/dairy.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/dairyops/ledger-engine/ledger"
)

// timeLayout is RFC 3339 with fixed nanosecond width so stored
// timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements ledger.Store and the supporting tables using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-mostly; flags are the only mutable columns)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		from_account TEXT NOT NULL CHECK (length(from_account) > 0),
		to_account TEXT NOT NULL CHECK (length(to_account) > 0),
		amount TEXT NOT NULL,
		mode TEXT NOT NULL,
		reference TEXT,
		receipt_url TEXT,
		cleared INTEGER NOT NULL DEFAULT 0,
		voided INTEGER NOT NULL DEFAULT 0,
		created_by TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_created_at
		ON ledger_entries(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_entries_mode_cleared
		ON ledger_entries(mode, cleared);
	CREATE INDEX IF NOT EXISTS idx_entries_reference
		ON ledger_entries(reference) WHERE reference IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_entries_idempotency
		ON ledger_entries(idempotency_key) WHERE idempotency_key IS NOT NULL;

	-- Users (actor registry; created_by resolution and name search)
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Delivery stops (producer of delivery-triggered ledger entries)
	CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		shop_name TEXT NOT NULL,
		address TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		collected_amount TEXT,
		mode TEXT,
		delivered_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deliveries_status
		ON deliveries(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier covers *sql.DB and *sql.Tx so the same helpers serve both the
// plain store and the transaction-scoped view used by WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ENTRY STORE (ledger.Store interface)
// =============================================================================

const entryColumns = `id, from_account, to_account, amount, mode, reference,
	receipt_url, cleared, voided, created_by, idempotency_key, created_at`

// InsertEntry appends an entry to the ledger.
func (s *Store) InsertEntry(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return insertEntry(ctx, s.db, e)
}

func insertEntry(ctx context.Context, q querier, e ledger.Entry) error {
	query := `
		INSERT INTO ledger_entries
		(id, from_account, to_account, amount, mode, reference, receipt_url,
		 cleared, voided, created_by, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		e.ID,
		e.FromAccount,
		e.ToAccount,
		e.Amount.String(),
		string(e.Mode),
		nullString(e.Reference),
		nullString(e.ReceiptURL),
		boolToInt(e.Cleared),
		boolToInt(e.Voided),
		nullString(e.CreatedBy),
		nullString(e.IdempotencyKey),
		e.CreatedAt.UTC().Format(timeLayout),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("insert entry %s: %w", e.ID, ledger.ErrDuplicateIdempotencyKey)
		}
		return fmt.Errorf("insert entry %s: %w", e.ID, err)
	}
	return nil
}

// GetEntry returns the entry with the given id, or nil if it does not
// exist or has been voided.
func (s *Store) GetEntry(ctx context.Context, id string) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getEntry(ctx, s.db, id)
}

func getEntry(ctx context.Context, q querier, id string) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = ? AND voided = 0`
	return queryOneEntry(ctx, q, query, id)
}

// GetEntryByIdempotencyKey returns the entry stored under key, or nil.
func (s *Store) GetEntryByIdempotencyKey(ctx context.Context, key string) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE idempotency_key = ?`
	return queryOneEntry(ctx, s.db, query, key)
}

func queryOneEntry(ctx context.Context, q querier, query string, args ...any) (*ledger.Entry, error) {
	entries, err := queryEntries(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// ListEntries returns non-voided entries matching the filter, newest first.
func (s *Store) ListEntries(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where = []string{"e.voided = 0"}
		args  []any
	)

	if f.From != nil {
		where = append(where, "e.created_at >= ?")
		args = append(args, f.From.UTC().Format(timeLayout))
	}
	if f.To != nil {
		where = append(where, "e.created_at <= ?")
		args = append(args, ledger.EndOfDay(f.To.UTC()).Format(timeLayout))
	}
	if f.Mode != "" {
		where = append(where, "e.mode = ?")
		args = append(args, string(f.Mode))
	}
	if f.Cleared != nil {
		where = append(where, "e.cleared = ?")
		args = append(args, boolToInt(*f.Cleared))
	}
	if f.Search != "" {
		where = append(where, `(instr(lower(e.from_account), ?) > 0
			OR instr(lower(e.to_account), ?) > 0
			OR instr(lower(ifnull(e.reference, '')), ?) > 0
			OR instr(lower(ifnull(u.name, '')), ?) > 0)`)
		needle := strings.ToLower(f.Search)
		args = append(args, needle, needle, needle, needle)
	}

	query := `
		SELECT e.id, e.from_account, e.to_account, e.amount, e.mode, e.reference,
		       e.receipt_url, e.cleared, e.voided, e.created_by, e.idempotency_key, e.created_at
		FROM ledger_entries e
		LEFT JOIN users u ON u.id = e.created_by
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY e.created_at DESC, e.id DESC
	`

	return queryEntries(ctx, s.db, query, args...)
}

// EntriesInRange returns all non-voided entries with created_at in
// [from, to], oldest first. Single statement: the reconciliation engine
// relies on this being one consistent scan.
func (s *Store) EntriesInRange(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return entriesInRange(ctx, s.db, from, to)
}

func entriesInRange(ctx context.Context, q querier, from, to time.Time) ([]ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE voided = 0 AND created_at >= ? AND created_at <= ?
		ORDER BY created_at ASC, id ASC
	`
	return queryEntries(ctx, q, query,
		from.UTC().Format(timeLayout), to.UTC().Format(timeLayout))
}

// ClearEntry sets cleared = true on one entry. Re-clearing an already
// cleared entry still counts as a changed row, so the operation is
// idempotent for callers.
func (s *Store) ClearEntry(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE ledger_entries SET cleared = 1 WHERE id = ? AND voided = 0", id)
	if err != nil {
		return 0, fmt.Errorf("clear entry %s: %w", id, err)
	}
	return res.RowsAffected()
}

// ClearMany sets cleared = true on every listed entry in one set-based
// statement. Ids that do not exist are skipped; the count reflects rows
// actually touched.
func (s *Store) ClearMany(ctx context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := "UPDATE ledger_entries SET cleared = 1 WHERE voided = 0 AND id IN (" +
		strings.Join(placeholders, ", ") + ")"

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk clear: %w", err)
	}
	return res.RowsAffected()
}

// VoidEntry tombstones an entry. The row stays for audit; every read
// path filters voided rows out.
func (s *Store) VoidEntry(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE ledger_entries SET voided = 1 WHERE id = ? AND voided = 0", id)
	if err != nil {
		return 0, fmt.Errorf("void entry %s: %w", id, err)
	}
	return res.RowsAffected()
}

// SumRefunded returns the total of non-voided reversal entries
// referencing originalID.
func (s *Store) SumRefunded(ctx context.Context, originalID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sumRefunded(ctx, s.db, originalID)
}

func sumRefunded(ctx context.Context, q querier, originalID string) (decimal.Decimal, error) {
	query := `
		SELECT amount FROM ledger_entries
		WHERE reference = ? AND voided = 0
	`

	rows, err := q.QueryContext(ctx, query, ledger.RefundReference(originalID))
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum refunds for %s: %w", originalID, err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt amount for refund of %s: %w", originalID, err)
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn against a ledger.Store view scoped to a single
// database transaction. Used by the refund processor so its validation
// read and insert are atomic.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the transaction-scoped ledger.Store view. No locking here:
// WithTx holds the store mutex for the whole closure.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) InsertEntry(ctx context.Context, e ledger.Entry) error {
	return insertEntry(ctx, ts.tx, e)
}

func (ts *txStore) GetEntry(ctx context.Context, id string) (*ledger.Entry, error) {
	return getEntry(ctx, ts.tx, id)
}

func (ts *txStore) GetEntryByIdempotencyKey(ctx context.Context, key string) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE idempotency_key = ?`
	return queryOneEntry(ctx, ts.tx, query, key)
}

func (ts *txStore) ListEntries(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error) {
	return nil, fmt.Errorf("ListEntries not supported inside a transaction")
}

func (ts *txStore) EntriesInRange(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	return entriesInRange(ctx, ts.tx, from, to)
}

func (ts *txStore) ClearEntry(ctx context.Context, id string) (int64, error) {
	res, err := ts.tx.ExecContext(ctx,
		"UPDATE ledger_entries SET cleared = 1 WHERE id = ? AND voided = 0", id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (ts *txStore) ClearMany(ctx context.Context, ids []string) (int64, error) {
	return 0, fmt.Errorf("ClearMany not supported inside a transaction")
}

func (ts *txStore) VoidEntry(ctx context.Context, id string) (int64, error) {
	res, err := ts.tx.ExecContext(ctx,
		"UPDATE ledger_entries SET voided = 1 WHERE id = ? AND voided = 0", id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (ts *txStore) SumRefunded(ctx context.Context, originalID string) (decimal.Decimal, error) {
	return sumRefunded(ctx, ts.tx, originalID)
}

func (ts *txStore) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	// Already inside a transaction.
	return fn(ts)
}

// =============================================================================
// SCANNING
// =============================================================================

func queryEntries(ctx context.Context, q querier, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e              ledger.Entry
		amount         string
		mode           string
		reference      sql.NullString
		receiptURL     sql.NullString
		cleared        int
		voided         int
		createdBy      sql.NullString
		idempotencyKey sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&e.ID, &e.FromAccount, &e.ToAccount, &amount, &mode,
		&reference, &receiptURL, &cleared, &voided, &createdBy,
		&idempotencyKey, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return e, fmt.Errorf("corrupt amount on entry %s: %w", e.ID, err)
	}
	e.Mode = ledger.PaymentMode(mode)
	e.Reference = reference.String
	e.ReceiptURL = receiptURL.String
	e.Cleared = cleared != 0
	e.Voided = voided != 0
	e.CreatedBy = createdBy.String
	e.IdempotencyKey = idempotencyKey.String
	e.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return e, fmt.Errorf("corrupt created_at on entry %s: %w", e.ID, err)
	}

	return e, nil
}

// =============================================================================
// USER STORE
// =============================================================================

// User is a minimal actor record so created_by resolves to a display
// name in listings and text search.
type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// SaveUser saves a user.
func (s *Store) SaveUser(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name
	`

	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Name, time.Now().UTC().Format(timeLayout))
	return err
}

// GetUser retrieves a user by ID, or nil.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u User
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Name, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	u.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &u, nil
}

// ListUsers returns all users.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM users ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Name, &createdAt); err != nil {
			return nil, err
		}
		u.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// DELIVERY STORE
// =============================================================================

// DeliveryRecord is a delivery stop. Marking one delivered with a
// collected amount is the only automatic producer of ledger entries.
type DeliveryRecord struct {
	ID              string
	ShopName        string
	Address         string
	Status          string // pending, delivered, cancelled
	CollectedAmount *decimal.Decimal
	Mode            string
	DeliveredAt     *time.Time
	CreatedAt       time.Time
}

// SaveDelivery inserts or updates a delivery stop.
func (s *Store) SaveDelivery(ctx context.Context, d DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var collected *string
	if d.CollectedAmount != nil {
		v := d.CollectedAmount.String()
		collected = &v
	}
	var deliveredAt *string
	if d.DeliveredAt != nil {
		v := d.DeliveredAt.UTC().Format(timeLayout)
		deliveredAt = &v
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO deliveries (id, shop_name, address, status, collected_amount, mode, delivered_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			shop_name = excluded.shop_name,
			address = excluded.address,
			status = excluded.status,
			collected_amount = excluded.collected_amount,
			mode = excluded.mode,
			delivered_at = excluded.delivered_at
	`

	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.ShopName, nullString(d.Address), d.Status, collected, nullString(d.Mode),
		deliveredAt, createdAt.UTC().Format(timeLayout))
	return err
}

// GetDelivery retrieves a delivery stop by ID, or nil.
func (s *Store) GetDelivery(ctx context.Context, id string) (*DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, shop_name, address, status, collected_amount, mode, delivered_at, created_at
		FROM deliveries WHERE id = ?
	`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries, err := scanDeliveries(rows)
	if err != nil {
		return nil, err
	}
	if len(deliveries) == 0 {
		return nil, nil
	}
	return &deliveries[0], nil
}

// ListDeliveries returns delivery stops, optionally filtered by status.
func (s *Store) ListDeliveries(ctx context.Context, status string) ([]DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, shop_name, address, status, collected_amount, mode, delivered_at, created_at
		FROM deliveries
	`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

func scanDeliveries(rows *sql.Rows) ([]DeliveryRecord, error) {
	var deliveries []DeliveryRecord
	for rows.Next() {
		var (
			d           DeliveryRecord
			address     sql.NullString
			collected   sql.NullString
			mode        sql.NullString
			deliveredAt sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&d.ID, &d.ShopName, &address, &d.Status, &collected,
			&mode, &deliveredAt, &createdAt); err != nil {
			return nil, err
		}
		d.Address = address.String
		d.Mode = mode.String
		if collected.Valid {
			v, err := decimal.NewFromString(collected.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt collected_amount on delivery %s: %w", d.ID, err)
			}
			d.CollectedAmount = &v
		}
		if deliveredAt.Valid {
			t, _ := time.Parse(timeLayout, deliveredAt.String)
			d.DeliveredAt = &t
		}
		d.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"ledger_entries", "deliveries", "users"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
