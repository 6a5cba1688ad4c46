package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/reduxgo/redux/pkg/api"
)

// PostgresPersistor is a Persistor backed by PostgreSQL. It keeps a single
// snapshot row, upserted on every persist.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib" or "github.com/lib/pq").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresPersistor[S any] struct {
	db *sql.DB
}

var _ api.Persistor[int] = (*PostgresPersistor[int])(nil)

// NewPostgresPersistor initializes the required schema in the given
// database and returns a new PostgresPersistor.
func NewPostgresPersistor[S any](db *sql.DB) (*PostgresPersistor[S], error) {
	p := &PostgresPersistor[S]{db: db}
	if err := p.initSchema(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PostgresPersistor[S]) initSchema() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS state_snapshot (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			saved_at BIGINT NOT NULL,
			state BYTEA NOT NULL
		);
	`)
	return err
}

func (p *PostgresPersistor[S]) ReadState(ctx context.Context) (S, bool, error) {
	var zero S
	var data []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT state FROM state_snapshot WHERE id = 1
	`).Scan(&data)
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

func (p *PostgresPersistor[S]) PersistState(ctx context.Context, state S) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO state_snapshot (id, saved_at, state)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET saved_at = $1, state = $2
	`,
		time.Now().UnixNano(),
		data,
	)
	return err
}

func (p *PostgresPersistor[S]) DeleteState(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM state_snapshot WHERE id = 1`)
	return err
}
