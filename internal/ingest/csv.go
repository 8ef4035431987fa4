package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/jgoulah/shedcal/internal/database"
	"github.com/jgoulah/shedcal/pkg/models"
)

const insertBatchSize = 500

// Store is the write side of the record store used by ingestion
type Store interface {
	InsertRecords(ctx context.Context, dataset string, records []models.ScheduleRecord) (int, error)
	UpsertCalendar(ctx context.Context, cal database.Calendar) error
}

// CSVResult summarizes a CSV import
type CSVResult struct {
	Rows     int
	Inserted int
}

// columns maps header aliases onto record fields. Any other column is kept
// in ScheduleRecord.Extra.
var columns = map[string]string{
	"area_name": "area_name",
	"area":      "area_name",
	"province":  "province",
	"block":     "block",
	"stage":     "block",
	"start":     "start",
	"finsh":     "end",
	"finish":    "end",
	"end":       "end",
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ImportCSV reads machine-friendly schedule rows from r into dataset.
// Times without a zone are read in loc.
func ImportCSV(ctx context.Context, store Store, dataset string, r io.Reader, loc *time.Location) (CSVResult, error) {
	var res CSVResult

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return res, fmt.Errorf("reading header: %w", err)
	}
	fields := make([]string, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if f, ok := columns[h]; ok {
			fields[i] = f
		} else {
			fields[i] = "extra:" + h
		}
	}
	for _, required := range []string{"area_name", "start", "end"} {
		if !slices.Contains(fields, required) {
			return res, fmt.Errorf("missing required column %q", required)
		}
	}

	batch := make([]models.ScheduleRecord, 0, insertBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := store.InsertRecords(ctx, dataset, batch)
		if err != nil {
			return err
		}
		res.Inserted += n
		batch = batch[:0]
		return nil
	}

	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}

		rec, err := parseRow(fields, row, loc)
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		res.Rows++
		batch = append(batch, rec)

		if len(batch) == insertBatchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}

	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}

func parseRow(fields, row []string, loc *time.Location) (models.ScheduleRecord, error) {
	var rec models.ScheduleRecord
	for i, v := range row {
		if i >= len(fields) {
			break
		}
		v = strings.TrimSpace(v)

		var err error
		switch f := fields[i]; f {
		case "area_name":
			rec.AreaName = v
		case "province":
			rec.Province = v
		case "block":
			rec.Block = v
		case "start":
			rec.StartTime, err = parseTime(v, loc)
		case "end":
			rec.EndTime, err = parseTime(v, loc)
		default:
			if v == "" {
				continue
			}
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[strings.TrimPrefix(f, "extra:")] = v
		}
		if err != nil {
			return rec, fmt.Errorf("column %s: %w", fields[i], err)
		}
	}

	if rec.AreaName == "" {
		return rec, errors.New("empty area name")
	}
	if rec.StartTime.IsZero() || rec.EndTime.IsZero() {
		return rec, errors.New("missing start or end time")
	}
	if rec.EndTime.Before(rec.StartTime) {
		return rec, fmt.Errorf("end %s is before start %s", rec.EndTime, rec.StartTime)
	}
	return rec, nil
}

func parseTime(v string, loc *time.Location) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", v)
}
