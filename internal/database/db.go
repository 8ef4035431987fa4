package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jgoulah/shedcal/pkg/models"
	_ "modernc.org/sqlite"
)

// timeLayout sorts lexicographically, so range predicates can compare the
// TEXT columns directly. All stored times are UTC.
const timeLayout = "2006-01-02 15:04:05"

// Options controls store behavior
type Options struct {
	// FoldAreaCase makes area name matching case-insensitive (ASCII only)
	FoldAreaCase bool
}

// DB wraps the database connection
type DB struct {
	conn *sql.DB
	opts Options
}

// New creates a new database connection and initializes the schema
func New(dbPath string, opts Options) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	_, _ = conn.Exec("PRAGMA journal_mode = WAL")
	_, _ = conn.Exec("PRAGMA busy_timeout = 5000")

	db := &DB{conn: conn, opts: opts}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schedule_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset TEXT NOT NULL,
		area_name TEXT NOT NULL,
		province TEXT NOT NULL DEFAULT '',
		block TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		extra TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(dataset, area_name, province, block, start_time, end_time)
	);
	CREATE INDEX IF NOT EXISTS idx_records_area ON schedule_records(dataset, area_name);
	CREATE INDEX IF NOT EXISTS idx_records_area_nocase ON schedule_records(dataset, area_name COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_records_province ON schedule_records(dataset, province);
	CREATE INDEX IF NOT EXISTS idx_records_start ON schedule_records(dataset, start_time);

	CREATE TABLE IF NOT EXISTS calendars (
		name TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		source_url TEXT,
		content_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		sha256 TEXT NOT NULL,
		event_count INTEGER NOT NULL DEFAULT 0,
		suburbs TEXT,
		payload BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

const recordColumns = `id, area_name, province, block, start_time, end_time, extra`

// InsertRecords inserts schedule records into a dataset in one transaction,
// ignoring duplicates. It returns the number of rows actually inserted.
func (db *DB) InsertRecords(ctx context.Context, dataset string, records []models.ScheduleRecord) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO schedule_records (dataset, area_name, province, block, start_time, end_time, extra, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	createdAt := time.Now().UTC().Format(time.RFC3339)
	inserted := 0
	for _, r := range records {
		var extra any
		if len(r.Extra) > 0 {
			b, err := json.Marshal(r.Extra)
			if err != nil {
				return 0, fmt.Errorf("encoding extra fields: %w", err)
			}
			extra = string(b)
		}

		res, err := stmt.ExecContext(ctx, dataset, r.AreaName, r.Province, r.Block,
			formatTime(r.StartTime), formatTime(r.EndTime), extra, createdAt)
		if err != nil {
			return 0, fmt.Errorf("inserting schedule record: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing records: %w", err)
	}
	return inserted, nil
}

// CountRecords returns the number of records stored for a dataset
func (db *DB) CountRecords(ctx context.Context, dataset string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedule_records WHERE dataset = ?`, dataset).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// ScanByOffset returns up to limit records of a dataset starting at offset,
// in insertion order
func (db *DB) ScanByOffset(ctx context.Context, dataset string, offset, limit int) ([]models.ScheduleRecord, error) {
	query := `
	SELECT ` + recordColumns + `
	FROM schedule_records
	WHERE dataset = ?
	ORDER BY id
	LIMIT ? OFFSET ?
	`
	return db.queryRecords(ctx, query, dataset, limit, offset)
}

// ScanByAttribute returns the records matching filter, in insertion order.
// A time range selects records whose half-open window intersects [From, To).
func (db *DB) ScanByAttribute(ctx context.Context, dataset string, filter models.RecordFilter) ([]models.ScheduleRecord, error) {
	collate := ""
	if db.opts.FoldAreaCase {
		collate = " COLLATE NOCASE"
	}

	where := []string{"dataset = ?"}
	args := []any{dataset}

	if filter.MatchProvince {
		where = append(where, "(area_name = ?"+collate+" OR province = ?"+collate+")")
		args = append(args, filter.AreaName, filter.AreaName)
	} else {
		where = append(where, "area_name = ?"+collate)
		args = append(args, filter.AreaName)
	}
	if !filter.To.IsZero() {
		where = append(where, "start_time < ?")
		args = append(args, formatTime(filter.To))
	}
	if !filter.From.IsZero() {
		where = append(where, "end_time > ?")
		args = append(args, formatTime(filter.From))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // no limit in SQLite
	}
	args = append(args, limit, max(filter.Offset, 0))

	query := `
	SELECT ` + recordColumns + `
	FROM schedule_records
	WHERE ` + strings.Join(where, " AND ") + `
	ORDER BY id
	LIMIT ? OFFSET ?
	`
	return db.queryRecords(ctx, query, args...)
}

func (db *DB) queryRecords(ctx context.Context, query string, args ...any) ([]models.ScheduleRecord, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying schedule records: %w", err)
	}
	defer rows.Close()

	results := []models.ScheduleRecord{}
	for rows.Next() {
		var r models.ScheduleRecord
		var startStr, endStr string
		var extra sql.NullString

		if err := rows.Scan(&r.ID, &r.AreaName, &r.Province, &r.Block, &startStr, &endStr, &extra); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		r.StartTime, err = time.Parse(timeLayout, startStr)
		if err != nil {
			return nil, fmt.Errorf("parsing start_time: %w", err)
		}
		r.EndTime, err = time.Parse(timeLayout, endStr)
		if err != nil {
			return nil, fmt.Errorf("parsing end_time: %w", err)
		}

		if extra.Valid && extra.String != "" {
			if err := json.Unmarshal([]byte(extra.String), &r.Extra); err != nil {
				return nil, fmt.Errorf("decoding extra fields: %w", err)
			}
		}

		results = append(results, r)
	}

	return results, rows.Err()
}

// Calendar is a calendar file together with its derived metadata, as
// written by ingestion
type Calendar struct {
	Asset   models.CalendarAsset
	Suburbs []string // nil when the source carries no suburb data
	Payload []byte
}

// UpsertCalendar stores or replaces a calendar
func (db *DB) UpsertCalendar(ctx context.Context, cal Calendar) error {
	var suburbs any
	if cal.Suburbs != nil {
		b, err := json.Marshal(cal.Suburbs)
		if err != nil {
			return fmt.Errorf("encoding suburbs: %w", err)
		}
		suburbs = string(b)
	}

	updatedAt := cal.Asset.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
	INSERT INTO calendars (name, file_name, source_url, content_type, size, sha256, event_count, suburbs, payload, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		file_name = excluded.file_name,
		source_url = excluded.source_url,
		content_type = excluded.content_type,
		size = excluded.size,
		sha256 = excluded.sha256,
		event_count = excluded.event_count,
		suburbs = excluded.suburbs,
		payload = excluded.payload,
		updated_at = excluded.updated_at
	`
	_, err := db.conn.ExecContext(ctx, query,
		cal.Asset.Name, cal.Asset.FileName, nullStr(cal.Asset.SourceURL), cal.Asset.ContentType,
		len(cal.Payload), cal.Asset.SHA256, cal.Asset.EventCount, suburbs, cal.Payload,
		updatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting calendar: %w", err)
	}
	return nil
}

const assetColumns = `name, file_name, source_url, content_type, size, sha256, event_count, suburbs IS NOT NULL, updated_at`

// GetMetadata returns the asset metadata of a calendar, or nil if unknown
func (db *DB) GetMetadata(ctx context.Context, calendarName string) (*models.CalendarAsset, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM calendars WHERE name = ?`, calendarName)
	asset, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying calendar metadata: %w", err)
	}
	return asset, nil
}

// ListCalendars returns metadata for all stored calendars, ordered by name
func (db *DB) ListCalendars(ctx context.Context) ([]models.CalendarAsset, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+assetColumns+` FROM calendars ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying calendars: %w", err)
	}
	defer rows.Close()

	var results []models.CalendarAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		results = append(results, *asset)
	}
	return results, rows.Err()
}

// CalendarPayload returns the raw stored calendar, or nil if unknown
func (db *DB) CalendarPayload(ctx context.Context, calendarName string) (*models.CalendarPayload, error) {
	p := models.CalendarPayload{Name: calendarName}
	err := db.conn.QueryRowContext(ctx, `SELECT content_type, payload FROM calendars WHERE name = ?`, calendarName).
		Scan(&p.ContentType, &p.Body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying calendar payload: %w", err)
	}
	return &p, nil
}

// CalendarSuburbs returns the suburbs recorded for a calendar. It returns
// nil when the calendar is unknown or has no suburb data.
func (db *DB) CalendarSuburbs(ctx context.Context, calendarName string) ([]string, error) {
	var raw sql.NullString
	err := db.conn.QueryRowContext(ctx, `SELECT suburbs FROM calendars WHERE name = ?`, calendarName).Scan(&raw)
	if err == sql.ErrNoRows || (err == nil && !raw.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying calendar suburbs: %w", err)
	}

	suburbs := []string{}
	if err := json.Unmarshal([]byte(raw.String), &suburbs); err != nil {
		return nil, fmt.Errorf("decoding suburbs: %w", err)
	}
	return suburbs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(s scanner) (*models.CalendarAsset, error) {
	var a models.CalendarAsset
	var sourceURL sql.NullString
	var updatedStr string
	if err := s.Scan(&a.Name, &a.FileName, &sourceURL, &a.ContentType, &a.Size, &a.SHA256,
		&a.EventCount, &a.HasSuburbs, &updatedStr); err != nil {
		return nil, err
	}
	a.SourceURL = sourceURL.String

	var err error
	a.UpdatedAt, err = time.Parse(time.RFC3339, updatedStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &a, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
