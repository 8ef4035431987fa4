// Package schedule answers read-only queries over stored load-shedding
// schedules: paginated record windows, area and date-range lookups,
// distinct-area listings and calendar metadata.
package schedule

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/jgoulah/shedcal/pkg/models"
)

const (
	// MaxRecords caps every paginated read.
	MaxRecords = 1000

	// DistinctAreaWindowDays is the lookahead used by GetDistinctAreas.
	DistinctAreaWindowDays = 10
)

// Store is the record store the engine reads from. Lookups of a single
// named item return (nil, nil) when the name is unknown.
type Store interface {
	ScanByOffset(ctx context.Context, dataset string, offset, limit int) ([]models.ScheduleRecord, error)
	ScanByAttribute(ctx context.Context, dataset string, filter models.RecordFilter) ([]models.ScheduleRecord, error)
	GetMetadata(ctx context.Context, calendarName string) (*models.CalendarAsset, error)
	CalendarPayload(ctx context.Context, calendarName string) (*models.CalendarPayload, error)
	CalendarSuburbs(ctx context.Context, calendarName string) ([]string, error)
}

// Engine is safe for concurrent use; it holds no mutable state.
type Engine struct {
	store   Store
	dataset string
	loc     *time.Location
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the zone that defines "today" and day boundaries.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an engine reading records of the given dataset from store.
func New(store Store, dataset string, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		dataset: dataset,
		loc:     time.Local,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the zone that defines day boundaries.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Today returns the start of the current day in the engine's location.
func (e *Engine) Today() time.Time {
	return e.startOfDay(e.now())
}

// GetCalendarData returns the stored payload for calendarName unmodified.
func (e *Engine) GetCalendarData(ctx context.Context, calendarName string) (*models.CalendarPayload, error) {
	const op = "GetCalendarData"
	payload, err := e.store.CalendarPayload(ctx, calendarName)
	if err != nil {
		return nil, storeUnavailable(op, err)
	}
	if payload == nil {
		return nil, notFound(op, "calendar %q not found", calendarName)
	}
	return payload, nil
}

// GetCalendarSuburbs returns the suburbs covered by a calendar. Calendars
// without suburb metadata fail with KindNotImplemented.
func (e *Engine) GetCalendarSuburbs(ctx context.Context, calendarName string) ([]string, error) {
	const op = "GetCalendarSuburbs"
	asset, err := e.store.GetMetadata(ctx, calendarName)
	if err != nil {
		return nil, storeUnavailable(op, err)
	}
	if asset == nil {
		return nil, notFound(op, "calendar %q not found", calendarName)
	}
	if !asset.HasSuburbs {
		return nil, notImplemented(op, "suburbs are not available for calendar %q", calendarName)
	}

	suburbs, err := e.store.CalendarSuburbs(ctx, calendarName)
	if err != nil {
		return nil, storeUnavailable(op, err)
	}
	if suburbs == nil {
		suburbs = []string{}
	}
	return suburbs, nil
}

// GetMachineData returns up to recordsToRetrieve records starting at
// offset lastRecord, in store order.
func (e *Engine) GetMachineData(ctx context.Context, lastRecord, recordsToRetrieve int) (*models.MachineData, error) {
	const op = "GetMachineData"
	if lastRecord < 0 {
		return nil, invalidArgument(op, "lastRecord must not be negative, got %d", lastRecord)
	}
	limit := clampRecords(recordsToRetrieve)

	rows, err := e.store.ScanByOffset(ctx, e.dataset, lastRecord, limit)
	if err != nil {
		return nil, storeUnavailable(op, err)
	}
	return page(rows, lastRecord, limit), nil
}

// GetDataByArea is GetMachineData restricted to one area.
func (e *Engine) GetDataByArea(ctx context.Context, areaName string, lastRecord, recordsToRetrieve int) (*models.MachineData, error) {
	const op = "GetDataByArea"
	if lastRecord < 0 {
		return nil, invalidArgument(op, "lastRecord must not be negative, got %d", lastRecord)
	}
	limit := clampRecords(recordsToRetrieve)

	rows, err := e.store.ScanByAttribute(ctx, e.dataset, models.RecordFilter{
		AreaName: areaName,
		Offset:   lastRecord,
		Limit:    limit,
	})
	if err != nil {
		return nil, storeUnavailable(op, err)
	}
	return page(rows, lastRecord, limit), nil
}

// GetDataByAreaDateTime returns the records of areaName whose window
// intersects the days [startDate, endDate], both inclusive. A zero
// startDate means today, a zero endDate means startDate.
func (e *Engine) GetDataByAreaDateTime(ctx context.Context, areaName string, startDate, endDate time.Time) (*models.MachineData, error) {
	from, to, err := e.resolveRange("GetDataByAreaDateTime", startDate, endDate)
	if err != nil {
		return nil, err
	}
	return e.scanRange(ctx, "GetDataByAreaDateTime", models.RecordFilter{AreaName: areaName, From: from, To: to})
}

// GetDistinctAreas lists the distinct (province, block, area) entries with
// windows in the next DistinctAreaWindowDays days, ordered by province and
// then area name. The name is matched against both the area and province
// of each record.
func (e *Engine) GetDistinctAreas(ctx context.Context, areaName string) (*models.MachineDataGrouped, error) {
	const op = "GetDistinctAreas"
	today := e.Today()
	from, to, err := e.resolveRange(op, today, today.AddDate(0, 0, DistinctAreaWindowDays))
	if err != nil {
		return nil, err
	}
	res, err := e.scanRange(ctx, op, models.RecordFilter{
		AreaName:      areaName,
		MatchProvince: true,
		From:          from,
		To:            to,
	})
	if err != nil {
		return nil, err
	}
	return &models.MachineDataGrouped{Data: GroupAreas(res.Data)}, nil
}

// GetAssetDataByCalendarName returns metadata for a calendar.
func (e *Engine) GetAssetDataByCalendarName(ctx context.Context, calendarName string) (*models.CalendarAsset, error) {
	const op = "GetAssetDataByCalendarName"
	asset, err := e.store.GetMetadata(ctx, calendarName)
	if err != nil {
		return nil, storeUnavailable(op, err)
	}
	if asset == nil {
		return nil, notFound(op, "calendar %q not found", calendarName)
	}
	return asset, nil
}

// GroupAreas projects records to (province, block, area), keeps the first
// record seen per key, then stable-sorts by province and area name.
func GroupAreas(records []models.ScheduleRecord) []models.GroupedArea {
	seen := make(map[models.GroupedArea]struct{}, len(records))
	out := make([]models.GroupedArea, 0, len(records))
	for _, r := range records {
		g := models.GroupedArea{Province: r.Province, Block: r.Block, AreaName: r.AreaName}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	slices.SortStableFunc(out, func(a, b models.GroupedArea) int {
		if c := cmp.Compare(a.Province, b.Province); c != 0 {
			return c
		}
		return cmp.Compare(a.AreaName, b.AreaName)
	})
	return out
}

func (e *Engine) scanRange(ctx context.Context, op string, filter models.RecordFilter) (*models.MachineData, error) {
	rows, err := e.store.ScanByAttribute(ctx, e.dataset, filter)
	if err != nil {
		return nil, storeUnavailable(op, err)
	}
	if rows == nil {
		rows = []models.ScheduleRecord{}
	}
	return &models.MachineData{Data: rows}, nil
}

// resolveRange applies the date defaults and turns the inclusive day range
// into a half-open [from, to) instant range.
func (e *Engine) resolveRange(op string, startDate, endDate time.Time) (time.Time, time.Time, error) {
	if startDate.IsZero() {
		startDate = e.now()
	}
	if endDate.IsZero() {
		endDate = startDate
	}
	from := e.startOfDay(startDate)
	end := e.startOfDay(endDate)
	if end.Before(from) {
		return time.Time{}, time.Time{}, invalidArgument(op, "endDate %s is before startDate %s",
			end.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	return from, end.AddDate(0, 0, 1), nil
}

func (e *Engine) startOfDay(t time.Time) time.Time {
	t = t.In(e.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
}

func clampRecords(n int) int {
	return min(max(n, 1), MaxRecords)
}

func page(rows []models.ScheduleRecord, offset, limit int) *models.MachineData {
	if len(rows) > limit {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = []models.ScheduleRecord{}
	}
	return &models.MachineData{Data: rows, NextOffset: offset + len(rows)}
}
