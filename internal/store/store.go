// Package store keeps deconvolution results in a SQLite database. Every
// invocation of the batch runner is a run with its own id; a run holds
// the mass spectrum, the per charge contributions and the peaks of every
// scan that was deconvolved.
package store

import (
	"bytes"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/524D/mzdecon/internal/config"
	"github.com/524D/mzdecon/internal/deconv"
	"github.com/524D/mzdecon/internal/massaxis"
	"github.com/524D/mzdecon/internal/peaks"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound means the requested run or scan is not in the database
var ErrNotFound = errors.New("store: not found")

// Store is a result database
type Store struct {
	db *sql.DB
}

// Run describes one batch run
type Run struct {
	ID        string
	Source    string
	Config    string // YAML
	CreatedAt time.Time
}

// Open opens or creates the database at path. ":memory:" gives a
// database that lives as long as the Store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers anyway, and a :memory: database exists
	// per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// NewRun registers a run of source with configuration cfg and returns its
// id
func (s *Store) NewRun(source string, cfg *config.Config) (string, error) {
	var buf bytes.Buffer
	if err := cfg.Write(&buf); err != nil {
		return "", err
	}
	id := uuid.New().String()
	_, err := s.db.Exec(`INSERT INTO runs (run_id, source, config, created_at) VALUES (?, ?, ?, ?)`,
		id, source, buf.String(), time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// Runs returns all runs, oldest first
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT run_id, source, config, created_at FROM runs ORDER BY created_at, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		var r Run
		var ns int64
		if err := rows.Scan(&r.ID, &r.Source, &r.Config, &ns); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(0, ns)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunConfig returns the configuration a run was made with
func (s *Store) RunConfig(runID string) (*config.Config, error) {
	var text string
	err := s.db.QueryRow(`SELECT config FROM runs WHERE run_id = ?`, runID).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return config.Load(bytes.NewBufferString(text))
}

// SaveResult stores the mass spectrum and peaks of r. Saving a scan twice
// replaces the earlier result.
func (s *Store) SaveResult(runID string, r *deconv.Result) (err error) {
	charges, err := json.Marshal(r.Charges)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM scans WHERE run_id = ? AND scan_id = ?`, runID, r.ID); err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO scans (run_id, scan_id, iterations, converged, fit_error, r_squared,
			mass_bin, charges, mass, intensity, charge_grid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.ID, r.Iterations, r.Converged, r.Error, r.RSquared,
		r.Axis.Bin, string(charges),
		encodeFloats(r.Axis.Mass), encodeFloats(r.Axis.Intensity), encodeFloats(r.Axis.Grid))
	if err != nil {
		return fmt.Errorf("failed to insert scan %s: %w", r.ID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO peaks (run_id, scan_id, rank, mass, intensity, fwhm_low, fwhm_high,
			bad, score, area, centroid, fit_center, average_mass, charges)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for rank, p := range r.Peaks {
		var pc []byte
		if pc, err = json.Marshal(p.Charges); err != nil {
			return err
		}
		_, err = stmt.Exec(runID, r.ID, rank, p.Mass, p.Intensity, p.FWHMLow, p.FWHMHigh,
			p.Bad, p.Score, p.Area, p.Centroid, p.FitCenter, p.AverageMass, string(pc))
		if err != nil {
			return fmt.Errorf("failed to insert peak %d of scan %s: %w", rank, r.ID, err)
		}
	}
	return tx.Commit()
}

// Spectrum returns the mass spectrum stored for a scan
func (s *Store) Spectrum(runID, scanID string) (*massaxis.Axis, error) {
	var charges string
	var mass, intensity, grid []byte
	a := &massaxis.Axis{}
	err := s.db.QueryRow(`
		SELECT mass_bin, charges, mass, intensity, charge_grid
		FROM scans WHERE run_id = ? AND scan_id = ?`, runID, scanID).
		Scan(&a.Bin, &charges, &mass, &intensity, &grid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: scan %s of run %s", ErrNotFound, scanID, runID)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(charges), &a.Charges); err != nil {
		return nil, err
	}
	a.NumZ = len(a.Charges)
	if a.Mass, err = decodeFloats(mass); err != nil {
		return nil, err
	}
	if a.Intensity, err = decodeFloats(intensity); err != nil {
		return nil, err
	}
	if a.Grid, err = decodeFloats(grid); err != nil {
		return nil, err
	}
	return a, nil
}

// Peaks returns the peaks stored for a scan, in detection order
func (s *Store) Peaks(runID, scanID string) ([]peaks.Peak, error) {
	rows, err := s.db.Query(`
		SELECT mass, intensity, fwhm_low, fwhm_high, bad, score, area, centroid, fit_center,
			average_mass, charges
		FROM peaks WHERE run_id = ? AND scan_id = ? ORDER BY rank`, runID, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pk []peaks.Peak
	for rows.Next() {
		var p peaks.Peak
		var charges string
		if err := rows.Scan(&p.Mass, &p.Intensity, &p.FWHMLow, &p.FWHMHigh, &p.Bad,
			&p.Score, &p.Area, &p.Centroid, &p.FitCenter, &p.AverageMass, &charges); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(charges), &p.Charges); err != nil {
			return nil, err
		}
		pk = append(pk, p)
	}
	return pk, rows.Err()
}

// PeaksInRange returns all stored peaks of a run with a mass in [lo, hi],
// keyed by scan id
func (s *Store) PeaksInRange(runID string, lo, hi float64) (map[string][]float64, error) {
	rows, err := s.db.Query(`
		SELECT scan_id, mass FROM peaks
		WHERE run_id = ? AND mass BETWEEN ? AND ? ORDER BY scan_id, rank`, runID, lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	m := make(map[string][]float64)
	for rows.Next() {
		var id string
		var mass float64
		if err := rows.Scan(&id, &mass); err != nil {
			return nil, err
		}
		m[id] = append(m[id], mass)
	}
	return m, rows.Err()
}

// encodeFloats stores v as snappy compressed little endian float64s
func encodeFloats(v []float64) []byte {
	raw := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(x))
	}
	return snappy.Encode(nil, raw)
}

func decodeFloats(b []byte) ([]float64, error) {
	raw, err := snappy.Decode(nil, b)
	if err != nil {
		return nil, fmt.Errorf("store: corrupt array: %w", err)
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("store: corrupt array of %d bytes", len(raw))
	}
	v := make([]float64, len(raw)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return v, nil
}
