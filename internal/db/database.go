package db

import (
	"database/sql"
	"fmt"
	"time"

	"fleet-ops-dashboard/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the SQLite replay store. Each frame holds one recorded fleet
// snapshot; frames are replayed in order by the replay source.
type Database struct {
	conn *sqlx.DB
}

// New creates a new database connection
func New(dbPath string) (*Database, error) {
	// Enable WAL mode and other optimizations via connection string
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000", dbPath)

	conn, err := sqlx.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite works best with single writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	db := &Database{conn: conn}

	if err := db.initialize(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// initialize creates tables and indexes
func (db *Database) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vehicle_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		frame INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		vehicle_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		latitude REAL,
		longitude REAL,
		speed_kmph REAL NOT NULL,
		fuel_consumed_liters REAL NOT NULL,
		co2_kg REAL NOT NULL,
		co2_saved_kg REAL NOT NULL,
		route_id TEXT NOT NULL,
		status TEXT NOT NULL,
		eta_hours REAL NOT NULL,
		eta_status TEXT NOT NULL,
		cargo_type TEXT NOT NULL DEFAULT '',
		deviation_status TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_records_frame ON vehicle_records(frame, seq);
	CREATE INDEX IF NOT EXISTS idx_records_vehicle ON vehicle_records(vehicle_id);
	CREATE INDEX IF NOT EXISTS idx_records_alert ON vehicle_records(status) WHERE status = 'HIGH_EMISSION_ALERT';
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.conn.Close()
}

// InsertFrame stores one snapshot under the given frame number, keeping the
// arrival order of its records
func (db *Database) InsertFrame(frame int64, records []models.VehicleRecord) (int64, error) {
	tx, err := db.conn.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamed(`
		INSERT INTO vehicle_records
		(frame, seq, vehicle_id, timestamp, latitude, longitude, speed_kmph,
		 fuel_consumed_liters, co2_kg, co2_saved_kg, route_id, status,
		 eta_hours, eta_status, cargo_type, deviation_status)
		VALUES (:frame, :seq, :vehicle_id, :timestamp, :latitude, :longitude, :speed_kmph,
		 :fuel_consumed_liters, :co2_kg, :co2_saved_kg, :route_id, :status,
		 :eta_hours, :eta_status, :cargo_type, :deviation_status)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var count int64
	for i, r := range records {
		row := recordRow{Frame: frame, Seq: int64(i), VehicleRecord: r}
		if _, err := stmt.Exec(row); err != nil {
			return count, fmt.Errorf("insert %s: %w", r.VehicleID, err)
		}
		count++
	}

	return count, tx.Commit()
}

type recordRow struct {
	Frame int64 `db:"frame"`
	Seq   int64 `db:"seq"`
	models.VehicleRecord
}

// NextFrame returns the frame number following the highest stored one
func (db *Database) NextFrame() (int64, error) {
	var last sql.NullInt64
	if err := db.conn.Get(&last, "SELECT MAX(frame) FROM vehicle_records"); err != nil {
		return 0, err
	}
	if !last.Valid {
		return 0, nil
	}
	return last.Int64 + 1, nil
}

// Frames returns every stored frame number in ascending order
func (db *Database) Frames() ([]int64, error) {
	var frames []int64
	err := db.conn.Select(&frames, "SELECT DISTINCT frame FROM vehicle_records ORDER BY frame")
	return frames, err
}

// SnapshotAt loads the snapshot recorded as the given frame
func (db *Database) SnapshotAt(frame int64) (*models.FleetSnapshot, error) {
	query := `
		SELECT vehicle_id, timestamp, latitude, longitude, speed_kmph,
		       fuel_consumed_liters, co2_kg, co2_saved_kg, route_id, status,
		       eta_hours, eta_status, cargo_type, deviation_status
		FROM vehicle_records
		WHERE frame = ?
		ORDER BY seq
	`

	var records []models.VehicleRecord
	if err := db.conn.Select(&records, query, frame); err != nil {
		return nil, err
	}
	return models.NewSnapshot(records), nil
}

// ListVehicles returns the distinct vehicle ids present in the store
func (db *Database) ListVehicles() ([]string, error) {
	var ids []string
	err := db.conn.Select(&ids, "SELECT DISTINCT vehicle_id FROM vehicle_records ORDER BY vehicle_id")
	return ids, err
}

// Stats summarises the replay store
type Stats struct {
	Frames       int64 `db:"frames" json:"frames"`
	Records      int64 `db:"records" json:"records"`
	Vehicles     int64 `db:"vehicles" json:"vehicles"`
	AlertRecords int64 `db:"alert_records" json:"alert_records"`
}

// GetStats returns database statistics
func (db *Database) GetStats() (*Stats, error) {
	var s Stats
	err := db.conn.Get(&s, `
		SELECT
			COUNT(DISTINCT frame) AS frames,
			COUNT(*) AS records,
			COUNT(DISTINCT vehicle_id) AS vehicles,
			COALESCE(SUM(CASE WHEN status = 'HIGH_EMISSION_ALERT' THEN 1 ELSE 0 END), 0) AS alert_records
		FROM vehicle_records
	`)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
