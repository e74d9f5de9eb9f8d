package recorder

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	_ "modernc.org/sqlite"

	"github.com/rony4d/go-gauge-funder/inter"
)

// SQLiteRecorder persists the checkpoint journal to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the history command read while the keeper writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("Checkpoint journal opened", "path", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			funder      TEXT NOT NULL,
			participant TEXT NOT NULL,
			timestamp   INTEGER NOT NULL,
			delta       TEXT NOT NULL,
			total       TEXT NOT NULL,
			rate        TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_participant ON checkpoints(funder, participant, timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordCheckpoint(rec *CheckpointRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO checkpoints
		(funder, participant, timestamp, delta, total, rate)
		VALUES (?,?,?,?,?,?)`,
		rec.Funder.Hex(), rec.Participant.Hex(), int64(rec.Time), rec.Delta, rec.Total, rec.Rate,
	)
	return err
}

// Checkpoints returns the journal of participant at funder, oldest first.
func (r *SQLiteRecorder) Checkpoints(funder, participant common.Address) ([]CheckpointRecord, error) {
	rows, err := r.db.Query(`SELECT timestamp, delta, total, rate FROM checkpoints
		WHERE funder = ? AND participant = ? ORDER BY timestamp, id`,
		funder.Hex(), participant.Hex(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CheckpointRecord
	for rows.Next() {
		rec := CheckpointRecord{Funder: funder, Participant: participant}
		var ts int64
		if err := rows.Scan(&ts, &rec.Delta, &rec.Total, &rec.Rate); err != nil {
			return nil, err
		}
		rec.Time = inter.Timestamp(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
