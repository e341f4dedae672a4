// Package logger implements logging of aggregate experiment metrics
// at epoch boundaries
package logger

import (
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	_ "modernc.org/sqlite"
)

// EpochLogger accumulates scalar metrics over the course of an epoch
// and, at each epoch boundary, writes their summary statistics to an
// output stream and optionally to a SQLite database. Each run is
// identified by a unique ID so that multiple runs can share one
// database file.
//
// Within an epoch, Store may be called many times per key, e.g. once
// per finished episode. LogEpoch summarizes every stored value for
// each key with its min, mean, and max, then clears the accumulated
// values so the next epoch starts fresh.
type EpochLogger struct {
	out   io.Writer
	db    *sql.DB
	runID string

	keys   []string
	values map[string][]float64
}

// NewEpochLogger returns a new EpochLogger writing its tabular output
// to out. If dbPath is non-empty, epoch summaries are also persisted
// to the SQLite database at dbPath, creating it if needed.
func NewEpochLogger(out io.Writer, dbPath string) (*EpochLogger, error) {
	l := &EpochLogger{
		out:    out,
		runID:  uuid.NewString(),
		values: make(map[string][]float64),
	}

	if dbPath == "" {
		return l, nil
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("epochlogger: could not open database: %v",
			err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("epochlogger: could not create tables: %v",
			err)
	}

	_, err = db.Exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		l.runID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("epochlogger: could not record run: %v", err)
	}

	l.db = db
	return l, nil
}

// RunID returns the unique identifier of the run being logged
func (l *EpochLogger) RunID() string {
	return l.runID
}

// Store accumulates a single value for key in the current epoch
func (l *EpochLogger) Store(key string, value float64) {
	if _, ok := l.values[key]; !ok {
		l.keys = append(l.keys, key)
	}
	l.values[key] = append(l.values[key], value)
}

// LogEpoch writes the summary statistics of every key stored during
// the current epoch, then clears the accumulated values. Keys are
// written in the order they were first stored.
func (l *EpochLogger) LogEpoch(epoch int) error {
	fmt.Fprintln(l.out)
	fmt.Fprintf(l.out, "%-24v %12v %12v %12v %8v\n",
		fmt.Sprintf("Epoch %v", epoch), "Min", "Mean", "Max", "N")

	for _, key := range l.keys {
		vals := l.values[key]
		if len(vals) == 0 {
			continue
		}

		min := floats.Min(vals)
		max := floats.Max(vals)
		mean := stat.Mean(vals, nil)

		fmt.Fprintf(l.out, "%-24v %12.4f %12.4f %12.4f %8v\n", key, min,
			mean, max, len(vals))

		if l.db != nil {
			_, err := l.db.Exec(`
				INSERT INTO epoch_metrics
					(run_id, epoch, metric, n, min, mean, max)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, l.runID, epoch, key, len(vals), min, mean, max)
			if err != nil {
				return fmt.Errorf("epochlogger: could not persist %v: %v",
					key, err)
			}
		}
	}

	for key := range l.values {
		l.values[key] = l.values[key][:0]
	}
	return nil
}

// Close closes the underlying database, if any
func (l *EpochLogger) Close() error {
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS epoch_metrics (
			run_id TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			metric TEXT NOT NULL,
			n INTEGER NOT NULL,
			min REAL NOT NULL,
			mean REAL NOT NULL,
			max REAL NOT NULL,
			PRIMARY KEY (run_id, epoch, metric)
		);
	`)
	return err
}
