package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"indexer-engine/internal/scalar"
)

// ErrNoTransaction is returned by CommitTransaction/RevertTransaction when
// no transaction is currently open (spec.md §4.3: "out-of-order calls
// surface the 'no transaction' error kind").
var ErrNoTransaction = errors.New("db: no open transaction")

// ErrTransactionAlreadyOpen is returned by StartTransaction when a
// transaction is already open on the session (spec.md §3 invariant: "At
// most one transaction is open on a session at any time").
var ErrTransactionAlreadyOpen = errors.New("db: transaction already open")

// TableMappingDoesNotExistError is returned by PutObject/PutManyToManyRecord
// for a type-id absent from the session's type-id → table mapping.
type TableMappingDoesNotExistError struct {
	TypeID uint64
}

func (e TableMappingDoesNotExistError) Error() string {
	return fmt.Sprintf("db: TableMappingDoesNotExist(%d)", e.TypeID)
}

// Session is the per-indexer scratch state: one acquired connection, the
// type-id → table mapping loaded from the schema registry at startup, and
// whether a transaction is currently open.
type Session struct {
	mu        sync.Mutex
	conn      *pgxpool.Conn
	tx        pgx.Tx
	typeTable map[uint64]string
}

// NewSession wraps conn with the given type-id → table mapping.
func NewSession(conn *pgxpool.Conn, typeTable map[uint64]string) *Session {
	return &Session{conn: conn, typeTable: typeTable}
}

// Release returns the underlying connection to its pool. Call once the
// owning pull loop stops (spec.md §4.7: "when it stops, the bridge and
// session are dropped, releasing the pooled connection").
func (s *Session) Release() {
	s.conn.Release()
}

// StartTransaction opens a transaction. The mutex is held only for the
// duration of this call (including the BEGIN round trip), not across the
// handler invocation that follows (spec.md §5).
func (s *Session) StartTransaction(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return ErrTransactionAlreadyOpen
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db: start transaction: %w", err)
	}
	s.tx = tx
	return nil
}

// CommitTransaction commits the open transaction.
func (s *Session) CommitTransaction(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return ErrNoTransaction
	}
	err := s.tx.Commit(ctx)
	s.tx = nil
	if err != nil {
		return fmt.Errorf("db: commit transaction: %w", err)
	}
	return nil
}

// RevertTransaction rolls back the open transaction.
func (s *Session) RevertTransaction(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return ErrNoTransaction
	}
	err := s.tx.Rollback(ctx)
	s.tx = nil
	if err != nil {
		return fmt.Errorf("db: revert transaction: %w", err)
	}
	return nil
}

// HasOpenTransaction reports whether a transaction is currently open.
func (s *Session) HasOpenTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

// PutObject formats and executes an INSERT against the table mapped from
// typeID, with one column encoding per §4.1 per value in columns.
func (s *Session) PutObject(ctx context.Context, typeID uint64, columns []scalar.Value) error {
	s.mu.Lock()
	tx := s.tx
	table, ok := s.typeTable[typeID]
	s.mu.Unlock()

	if tx == nil {
		return ErrNoTransaction
	}
	if !ok {
		return TableMappingDoesNotExistError{TypeID: typeID}
	}

	stmt, err := buildInsert(table, columns)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return err
	}
	return nil
}

// PutManyToManyRecord inserts a join-table row directly against the named
// table (many-to-many records are not type-id mapped — the handler names
// the join table explicitly, mirroring the host callback's own contract).
func (s *Session) PutManyToManyRecord(ctx context.Context, table string, columns []scalar.Value) error {
	s.mu.Lock()
	tx := s.tx
	s.mu.Unlock()

	if tx == nil {
		return ErrNoTransaction
	}
	stmt, err := buildInsert(table, columns)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return err
	}
	return nil
}

func buildInsert(table string, columns []scalar.Value) (string, error) {
	frags := make([]string, len(columns))
	for i, c := range columns {
		f, err := c.Fragment()
		if err != nil {
			return "", fmt.Errorf("db: encode column %d: %w", i, err)
		}
		frags[i] = f
	}
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" VALUES (")
	b.WriteString(strings.Join(frags, ","))
	b.WriteString(");")
	return b.String(), nil
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505) — the error classified by spec.md §7 as
// "batch already applied".
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
