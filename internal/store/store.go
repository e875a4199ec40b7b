// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/evmeter/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Settings keys.
const (
	keyCalibration = "calibration_constant"
	keyAperture    = "aperture_override"
)

// noteTimeLayout is fixed width so that taken_at compares as text in time order.
// Values are always stored in UTC.
const noteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNoteNotFound is returned when deleting a note that does not exist.
var ErrNoteNotFound = errors.New("note not found")

// Store wraps SQLite access for meter settings and exposure notes.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY,
			taken_at TEXT NOT NULL,
			aperture TEXT NOT NULL,
			shutter TEXT NOT NULL,
			iso TEXT NOT NULL,
			ev REAL NOT NULL,
			mode TEXT NOT NULL,
			calibrated INTEGER NOT NULL,
			latitude REAL,
			longitude REAL,
			memo TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_notes_taken_at ON notes(taken_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// LoadSettings reads the persisted calibration constant and aperture override.
// Values that cannot be parsed are treated as absent.
func (s *Store) LoadSettings(ctx context.Context) (model.PersistedSettings, error) {
	var out model.PersistedSettings
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings WHERE key IN (?, ?)`, keyCalibration, keyAperture)
	if err != nil {
		return out, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return out, err
		}
		v, perr := strconv.ParseFloat(value, 64)
		if perr != nil {
			continue
		}
		switch key {
		case keyCalibration:
			out.CalibrationConstant = &v
		case keyAperture:
			out.ApertureOverride = &v
		}
	}
	if err := rows.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// SaveCalibration stores the calibration constant; nil removes it.
func (s *Store) SaveCalibration(ctx context.Context, constant *float64) error {
	return s.putFloat(ctx, keyCalibration, constant)
}

// SaveApertureOverride stores the aperture override; nil removes it.
func (s *Store) SaveApertureOverride(ctx context.Context, aperture *float64) error {
	return s.putFloat(ctx, keyAperture, aperture)
}

func (s *Store) putFloat(ctx context.Context, key string, value *float64) error {
	if value == nil {
		_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		strconv.FormatFloat(*value, 'g', -1, 64),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// InsertNote stores an exposure note and returns its id.
func (s *Store) InsertNote(ctx context.Context, note model.ExposureNote) (int64, error) {
	calibrated := 0
	if note.Calibrated {
		calibrated = 1
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (taken_at, aperture, shutter, iso, ev, mode, calibrated, latitude, longitude, memo)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatNoteTime(note.TakenAt),
		note.Aperture,
		note.Shutter,
		note.ISO,
		note.EV,
		note.Mode,
		calibrated,
		nullFloat(note.Latitude),
		nullFloat(note.Longitude),
		note.Memo,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListNotes returns notes oldest first. With filter.Last set, only the most
// recent Last notes are returned.
func (s *Store) ListNotes(ctx context.Context, filter model.NoteFilter) ([]model.ExposureNote, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Since != nil {
		clauses = append(clauses, "taken_at >= ?")
		args = append(args, formatNoteTime(*filter.Since))
	}
	limit := ""
	if filter.Last > 0 {
		limit = "LIMIT ?"
		args = append(args, filter.Last)
	}
	query := fmt.Sprintf(`SELECT id, taken_at, aperture, shutter, iso, ev, mode, calibrated, latitude, longitude, memo
		FROM (
			SELECT * FROM notes
			WHERE %s
			ORDER BY taken_at DESC, id DESC
			%s
		)
		ORDER BY taken_at ASC, id ASC`, strings.Join(clauses, " AND "), limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var notes []model.ExposureNote
	for rows.Next() {
		var note model.ExposureNote
		var takenAt string
		var calibrated int
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&note.ID, &takenAt, &note.Aperture, &note.Shutter, &note.ISO, &note.EV,
			&note.Mode, &calibrated, &lat, &lon, &note.Memo); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(noteTimeLayout, takenAt)
		if err != nil {
			return nil, err
		}
		note.TakenAt = parsed
		note.Calibrated = calibrated != 0
		if lat.Valid {
			v := lat.Float64
			note.Latitude = &v
		}
		if lon.Valid {
			v := lon.Float64
			note.Longitude = &v
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notes, nil
}

// DeleteNote removes a note by id.
func (s *Store) DeleteNote(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNoteNotFound, id)
	}
	return nil
}

func formatNoteTime(t time.Time) string {
	return t.UTC().Format(noteTimeLayout)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
