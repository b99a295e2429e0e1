package kpi

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	core "github.com/mergeeats/core/core/metrics/kpi"
)

// SQLiteStore persists KPI records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS delivery_kpi (
        partner_id TEXT,
        day INTEGER,
        assignments INTEGER,
        merged_orders INTEGER,
        minutes_saved REAL,
        PRIMARY KEY(partner_id, day)
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Add inserts or updates the KPI record.
func (s *SQLiteStore) Add(r core.Record) error {
	d := core.Day(r.Date)
	_, err := s.db.Exec(`INSERT INTO delivery_kpi (partner_id, day, assignments, merged_orders, minutes_saved)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(partner_id, day) DO UPDATE SET
            assignments = assignments + excluded.assignments,
            merged_orders = merged_orders + excluded.merged_orders,
            minutes_saved = minutes_saved + excluded.minutes_saved`,
		r.PartnerID, d.Unix(), r.Assignments, r.MergedOrders, r.MinutesSaved)
	return err
}

// Query returns records in the range [start,end].
func (s *SQLiteStore) Query(partnerID string, start, end time.Time) ([]core.Record, error) {
	start = core.Day(start)
	end = core.Day(end)
	rows, err := s.db.Query(`SELECT partner_id, day, assignments, merged_orders, minutes_saved
        FROM delivery_kpi WHERE partner_id = ? AND day >= ? AND day <= ? ORDER BY day`,
		partnerID, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []core.Record
	for rows.Next() {
		var pid string
		var ts int64
		var assignments, merged int
		var saved float64
		if err := rows.Scan(&pid, &ts, &assignments, &merged, &saved); err != nil {
			return nil, err
		}
		res = append(res, core.Record{
			PartnerID:    pid,
			Date:         time.Unix(ts, 0).UTC(),
			Assignments:  assignments,
			MergedOrders: merged,
			MinutesSaved: saved,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
