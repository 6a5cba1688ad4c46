package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/reduxgo/redux/pkg/api"
)

// defaultSnapshotHistory is how many snapshots the SQLite persistor keeps
// before pruning the oldest.
const defaultSnapshotHistory = 10

// SQLitePersistor is a Persistor backed by SQLite. It keeps a short history
// of snapshots and reads back the newest one.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLitePersistor[S any] struct {
	db      *sql.DB
	history int
}

var _ api.Persistor[int] = (*SQLitePersistor[int])(nil)

// NewSQLitePersistor initializes the required schema in the given database
// and returns a SQLitePersistor keeping the default snapshot history.
func NewSQLitePersistor[S any](db *sql.DB) (*SQLitePersistor[S], error) {
	return NewSQLitePersistorWithHistory[S](db, defaultSnapshotHistory)
}

// NewSQLitePersistorWithHistory is NewSQLitePersistor with a custom
// snapshot history cap. history <= 0 keeps a single snapshot.
func NewSQLitePersistorWithHistory[S any](db *sql.DB, history int) (*SQLitePersistor[S], error) {
	if history <= 0 {
		history = 1
	}
	p := &SQLitePersistor[S]{db: db, history: history}
	if err := p.initSchema(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SQLitePersistor[S]) initSchema() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS state_snapshots (
			id TEXT PRIMARY KEY,
			saved_at INTEGER NOT NULL,
			state BLOB NOT NULL
		);`,
	)
	return err
}

func (p *SQLitePersistor[S]) ReadState(ctx context.Context) (S, bool, error) {
	var zero S
	var data []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT state FROM state_snapshots
		ORDER BY saved_at DESC, rowid DESC
		LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	state, err := decodeState[S](data)
	if err != nil {
		return zero, false, err
	}
	return state, true, nil
}

func (p *SQLitePersistor[S]) PersistState(ctx context.Context, state S) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO state_snapshots (id, saved_at, state)
		VALUES (?, ?, ?)`,
		uuid.NewString(),
		time.Now().UnixNano(),
		data,
	)
	if err != nil {
		return err
	}
	return p.prune(ctx)
}

// prune keeps only the newest history snapshots.
func (p *SQLitePersistor[S]) prune(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM state_snapshots
		WHERE id NOT IN (
			SELECT id FROM state_snapshots
			ORDER BY saved_at DESC, rowid DESC
			LIMIT ?
		)`,
		p.history,
	)
	return err
}

func (p *SQLitePersistor[S]) DeleteState(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM state_snapshots`)
	return err
}
