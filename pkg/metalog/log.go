package metalog

import (
	"context"
	"database/sql"
	"log"

	"github.com/hashicorp/go-multierror"

	"github.com/tessellate-db/tessellate/pkg/wire"
)

// schema is created once per underlying *sql.DB, shared by every Log opened
// against it (MML and RSML alike distinguish themselves by name).
const schema = `
CREATE TABLE IF NOT EXISTS meta_log_entry (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	log_name TEXT NOT NULL,
	frame    BLOB NOT NULL
)`

// Log is one named append-only meta-log (an MML or an RSML), backed by a
// SQL table so appends are durable and replay is a single ordered query.
type Log struct {
	name       string
	db         *sql.DB
	insert     *sql.Stmt
	selectAll  *sql.Stmt
	truncateAt *sql.Stmt
}

// Open prepares a Log named name against db, creating the backing table if
// it doesn't already exist. Multiple Logs (e.g. the MML and one RSML per
// range-server) can share the same db; they're distinguished by name.
func Open(db *sql.DB, name string) (*Log, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	var prepareErr error
	insert, err := db.Prepare("INSERT INTO meta_log_entry (log_name, frame) VALUES (?, ?)")
	if err != nil {
		prepareErr = multierror.Append(prepareErr, err)
	}
	selectAll, err := db.Prepare("SELECT frame FROM meta_log_entry WHERE log_name = ? ORDER BY seq ASC")
	if err != nil {
		prepareErr = multierror.Append(prepareErr, err)
	}
	truncateAt, err := db.Prepare("DELETE FROM meta_log_entry WHERE log_name = ?")
	if err != nil {
		prepareErr = multierror.Append(prepareErr, err)
	}
	if prepareErr != nil {
		return nil, prepareErr
	}

	return &Log{name: name, db: db, insert: insert, selectAll: selectAll, truncateAt: truncateAt}, nil
}

// Append durably writes rec as the next entry in the log.
func (l *Log) Append(ctx context.Context, rec Record) error {
	frame := wire.EncodeFrame(rec.Encode())
	if _, err := l.insert.ExecContext(ctx, l.name, frame); err != nil {
		log.Printf("metalog: append to %s failed: %v", l.name, err)
		return err
	}
	return nil
}

// AppendBatch durably writes every record in a single transaction: either
// all of them land or none does. The recover-server operation does not use
// it; it records each of its state transitions with Append.
func (l *Log) AppendBatch(ctx context.Context, recs []Record) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt := tx.StmtContext(ctx, l.insert)
	for _, rec := range recs {
		frame := wire.EncodeFrame(rec.Encode())
		if _, err := stmt.ExecContext(ctx, l.name, frame); err != nil {
			log.Printf("metalog: batch append to %s failed: %v", l.name, err)
			return err
		}
	}
	return tx.Commit()
}

// Replay returns every record in the log, oldest first, reconstructing the
// live entity set on restart.
func (l *Log) Replay(ctx context.Context) ([]Record, error) {
	rows, err := l.selectAll.QueryContext(ctx, l.name)
	if err != nil {
		log.Printf("metalog: replay of %s failed: %v", l.name, err)
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var frame []byte
		if err := rows.Scan(&frame); err != nil {
			return nil, err
		}
		payload, err := wire.DecodeFrame(frame)
		if err != nil {
			return nil, err
		}
		rec, err := DecodeRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Reset atomically replaces the log's contents with an empty stream. The
// recover-server operation's FINALIZE phase uses this to write an empty
// RSML and retire a recovered server's state in one durable step.
func (l *Log) Reset(ctx context.Context) error {
	if _, err := l.truncateAt.ExecContext(ctx, l.name); err != nil {
		log.Printf("metalog: reset of %s failed: %v", l.name, err)
		return err
	}
	return nil
}

// LatestByLocation takes records in log order (as Replay returns them) and
// returns only the most recent record for each location, which is what a resuming operation processor actually
// needs on resume: every entity's last recorded state.
func LatestByLocation(records []Record) map[string]Record {
	latest := make(map[string]Record, len(records))
	for _, rec := range records {
		latest[rec.Location] = rec
	}
	return latest
}
