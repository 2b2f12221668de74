package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
	path string
}

// OpenDB opens the database at path without touching the schema. The
// migration commands use this so golang-migrate stays the only writer
// of schema changes.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &DB{sqlDB, path}, nil
}

func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			label TEXT,
			source TEXT,
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS samples (
			session_id TEXT,
			t DOUBLE,
			x DOUBLE,
			y DOUBLE,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE TABLE IF NOT EXISTS estimates (
			session_id TEXT,
			bpm DOUBLE,
			angular_freq DOUBLE,
			fit_error DOUBLE,
			sample_count INTEGER,
			estimated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS idx_samples_session ON samples(session_id);
		CREATE INDEX IF NOT EXISTS idx_estimates_session ON estimates(session_id);
	`)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// Session is one tracking run. Everything recorded hangs off its ID.
type Session struct {
	ID        string
	Label     string
	Source    string
	StartedAt string
}

// CreateSession registers a new tracking run and returns it.
func (db *DB) CreateSession(label, source string) (Session, error) {
	s := Session{ID: uuid.New().String(), Label: label, Source: source}
	_, err := db.Exec("INSERT INTO sessions (session_id, label, source) VALUES (?, ?, ?)",
		s.ID, s.Label, s.Source)
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// Sessions returns known sessions, newest first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query("SELECT session_id, label, source, started_at FROM sessions ORDER BY rowid DESC LIMIT 500")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Label, &s.Source, &s.StartedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Sample is one buffered position observation.
type Sample struct {
	T float64
	X float64
	Y float64
}

func (db *DB) RecordSample(sessionID string, s Sample) error {
	_, err := db.Exec("INSERT INTO samples (session_id, t, x, y) VALUES (?, ?, ?, ?)",
		sessionID, s.T, s.X, s.Y)
	if err != nil {
		return err
	}
	return nil
}

// RecordSamples inserts a batch of samples in one transaction.
func (db *DB) RecordSamples(sessionID string, samples []Sample) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO samples (session_id, t, x, y) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.Exec(sessionID, s.T, s.X, s.Y); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Samples returns a session's observations in time order.
func (db *DB) Samples(sessionID string, limit int) ([]Sample, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := db.Query("SELECT t, x, y FROM samples WHERE session_id = ? ORDER BY t ASC LIMIT ?",
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.T, &s.X, &s.Y); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// Estimate is one recorded tempo readout.
type Estimate struct {
	SessionID   string
	BPM         float64
	AngularFreq float64
	FitError    float64
	SampleCount int
	EstimatedAt string
}

func (e *Estimate) String() string {
	return fmt.Sprintf("BPM: %.1f, AngularFreq: %f, FitError: %g, Samples: %d",
		e.BPM, e.AngularFreq, e.FitError, e.SampleCount)
}

// EstimateAPI is the JSON shape estimates are served in. Without it the
// response would expose raw storage field names; the API layer controls its
// output format with this struct.
type EstimateAPI struct {
	SessionID   string  `json:"session_id"`
	BPM         float64 `json:"bpm"`
	AngularFreq float64 `json:"angular_freq"`
	FitError    float64 `json:"fit_error"`
	SampleCount int     `json:"sample_count"`
	EstimatedAt string  `json:"estimated_at"`
}

// EstimateToAPI converts a stored estimate to its API representation.
func EstimateToAPI(e Estimate) EstimateAPI {
	return EstimateAPI{
		SessionID:   e.SessionID,
		BPM:         e.BPM,
		AngularFreq: e.AngularFreq,
		FitError:    e.FitError,
		SampleCount: e.SampleCount,
		EstimatedAt: e.EstimatedAt,
	}
}

func (db *DB) RecordEstimate(e Estimate) error {
	_, err := db.Exec("INSERT INTO estimates (session_id, bpm, angular_freq, fit_error, sample_count) VALUES (?, ?, ?, ?, ?)",
		e.SessionID, e.BPM, e.AngularFreq, e.FitError, e.SampleCount)
	if err != nil {
		return err
	}
	return nil
}

// Estimates returns a session's recorded readouts, newest first.
func (db *DB) Estimates(sessionID string, limit int) ([]Estimate, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(`SELECT session_id, bpm, angular_freq, fit_error, sample_count, estimated_at
		FROM estimates WHERE session_id = ? ORDER BY rowid DESC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var estimates []Estimate
	for rows.Next() {
		var e Estimate
		if err := rows.Scan(&e.SessionID, &e.BPM, &e.AngularFreq, &e.FitError, &e.SampleCount, &e.EstimatedAt); err != nil {
			return nil, err
		}
		estimates = append(estimates, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return estimates, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Bop DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		// Send the backup file to the client
		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		// Copy the backup file content to the gzip writer
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
