// Package journal persists every applied command and the events it produced
// to SQLite, and serves them back for replay and audit.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"lob/internal/engine"
	"lob/internal/orderbook"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Journal is an engine.Sink and engine.Source backed by one SQLite file.
type Journal struct {
	db *sql.DB
}

// Record is one journaled event.
type Record struct {
	Instrument string
	Sequence   uint64
	Position   int
	Event      orderbook.Event
}

// Open creates or opens the database at path and brings its schema up to date.
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %s", path)
	}
	// One writer; concurrent markets queue on the pool instead of hitting
	// SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable foreign keys")
	}
	if err := j.Migrate(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate journal")
	}
	return j, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Publish appends the batch's command and events in one transaction.
func (j *Journal) Publish(ctx context.Context, b engine.Batch) error {
	cmd, err := json.Marshal(b.Command)
	if err != nil {
		return errors.Wrap(err, "encode command")
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin journal tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO commands (instrument, sequence, kind, order_id, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.Instrument, b.Sequence, string(b.Command.Kind), b.Command.Order.ID, string(cmd),
		b.Time.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return errors.Wrapf(err, "append command %s/%d", b.Instrument, b.Sequence)
	}

	for i, env := range orderbook.Wrap(b.Events) {
		payload, err := json.Marshal(env)
		if err != nil {
			return errors.Wrap(err, "encode event")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (instrument, sequence, position, kind, payload) VALUES (?, ?, ?, ?, ?)`,
			b.Instrument, b.Sequence, i, env.Kind.String(), string(payload),
		); err != nil {
			return errors.Wrapf(err, "append event %s/%d/%d", b.Instrument, b.Sequence, i)
		}
	}

	return errors.Wrap(tx.Commit(), "commit journal tx")
}

// Commands returns the command log of instrument in sequence order.
func (j *Journal) Commands(ctx context.Context, instrument string) ([]engine.Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT sequence, payload FROM commands WHERE instrument = ? ORDER BY sequence`, instrument)
	if err != nil {
		return nil, errors.Wrap(err, "query commands")
	}
	defer rows.Close()

	var out []engine.Entry
	for rows.Next() {
		var (
			e       engine.Entry
			payload string
		)
		if err := rows.Scan(&e.Sequence, &payload); err != nil {
			return nil, errors.Wrap(err, "scan command")
		}
		if err := json.Unmarshal([]byte(payload), &e.Command); err != nil {
			return nil, errors.Wrapf(err, "decode command %s/%d", instrument, e.Sequence)
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate commands")
}

// Events returns the events of instrument recorded after sequence after.
func (j *Journal) Events(ctx context.Context, instrument string, after uint64) ([]Record, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT sequence, position, payload FROM events
		 WHERE instrument = ? AND sequence > ?
		 ORDER BY sequence, position`, instrument, after)
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       = Record{Instrument: instrument}
			payload string
			env     orderbook.Envelope
		)
		if err := rows.Scan(&r.Sequence, &r.Position, &payload); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			return nil, errors.Wrapf(err, "decode event %s/%d/%d", instrument, r.Sequence, r.Position)
		}
		r.Event = env.Event
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate events")
}

// OrderHistory returns every command that touched order id.
func (j *Journal) OrderHistory(ctx context.Context, instrument, id string) ([]engine.Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT sequence, payload FROM commands
		 WHERE instrument = ? AND order_id = ? ORDER BY sequence`, instrument, id)
	if err != nil {
		return nil, errors.Wrap(err, "query order history")
	}
	defer rows.Close()

	var out []engine.Entry
	for rows.Next() {
		var (
			e       engine.Entry
			payload string
		)
		if err := rows.Scan(&e.Sequence, &payload); err != nil {
			return nil, errors.Wrap(err, "scan command")
		}
		if err := json.Unmarshal([]byte(payload), &e.Command); err != nil {
			return nil, errors.Wrap(err, "decode command")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate order history")
}

// LastSequence returns the highest journaled sequence of instrument, 0 if none.
func (j *Journal) LastSequence(ctx context.Context, instrument string) (uint64, error) {
	var seq uint64
	err := j.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM commands WHERE instrument = ?`, instrument).Scan(&seq)
	return seq, errors.Wrap(err, "read last sequence")
}
