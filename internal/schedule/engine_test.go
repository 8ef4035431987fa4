package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/jgoulah/shedcal/pkg/models"
)

type memStore struct {
	records   []models.ScheduleRecord
	calendars map[string]*models.CalendarAsset
	payloads  map[string][]byte
	suburbs   map[string][]string
	err       error

	lastFilter models.RecordFilter
}

func (m *memStore) ScanByOffset(_ context.Context, _ string, offset, limit int) ([]models.ScheduleRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	if offset >= len(m.records) {
		return nil, nil
	}
	end := min(offset+limit, len(m.records))
	return append([]models.ScheduleRecord(nil), m.records[offset:end]...), nil
}

func (m *memStore) ScanByAttribute(_ context.Context, _ string, f models.RecordFilter) ([]models.ScheduleRecord, error) {
	m.lastFilter = f
	if m.err != nil {
		return nil, m.err
	}
	var out []models.ScheduleRecord
	for _, r := range m.records {
		if r.AreaName != f.AreaName && !(f.MatchProvince && r.Province == f.AreaName) {
			continue
		}
		if !f.To.IsZero() && !r.StartTime.Before(f.To) {
			continue
		}
		if !f.From.IsZero() && !r.EndTime.After(f.From) {
			continue
		}
		out = append(out, r)
	}
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) GetMetadata(_ context.Context, name string) (*models.CalendarAsset, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.calendars[name], nil
}

func (m *memStore) CalendarPayload(_ context.Context, name string) (*models.CalendarPayload, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, ok := m.payloads[name]
	if !ok {
		return nil, nil
	}
	return &models.CalendarPayload{Name: name, ContentType: "text/calendar", Body: body}, nil
}

func (m *memStore) CalendarSuburbs(_ context.Context, name string) ([]string, error) {
	return m.suburbs[name], m.err
}

var fixedNow = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

func newTestEngine(store Store) *Engine {
	return New(store, "machine_friendly",
		WithLocation(time.UTC),
		WithClock(func() time.Time { return fixedNow }))
}

func window(area, province, block string, day time.Time) models.ScheduleRecord {
	start := day.Add(10 * time.Hour)
	return models.ScheduleRecord{
		AreaName:  area,
		Province:  province,
		Block:     block,
		StartTime: start,
		EndTime:   start.Add(2*time.Hour + 30*time.Minute),
	}
}

func numbered(n int) []models.ScheduleRecord {
	recs := make([]models.ScheduleRecord, n)
	for i := range recs {
		recs[i] = window(fmt.Sprintf("area-%d", i%7), "Western Cape", "1", fixedNow)
		recs[i].ID = int64(i + 1)
	}
	return recs
}

func TestGetMachineDataWindows(t *testing.T) {
	store := &memStore{records: numbered(2500)}
	e := newTestEngine(store)

	tests := []struct {
		last, count int
		wantLen     int
		wantFirstID int64
	}{
		{0, 1, 1, 1},
		{0, 1000, 1000, 1},
		{10, 5, 5, 11},
		{2400, 1000, 100, 2401},
		{2499, 10, 1, 2500},
	}
	for _, tt := range tests {
		res, err := e.GetMachineData(context.Background(), tt.last, tt.count)
		if err != nil {
			t.Fatalf("GetMachineData(%d, %d): %v", tt.last, tt.count, err)
		}
		if len(res.Data) != tt.wantLen {
			t.Fatalf("GetMachineData(%d, %d): got %d records, want %d", tt.last, tt.count, len(res.Data), tt.wantLen)
		}
		if res.Data[0].ID != tt.wantFirstID {
			t.Fatalf("GetMachineData(%d, %d): first id %d, want %d", tt.last, tt.count, res.Data[0].ID, tt.wantFirstID)
		}
		if res.NextOffset != tt.last+tt.wantLen {
			t.Fatalf("GetMachineData(%d, %d): next offset %d, want %d", tt.last, tt.count, res.NextOffset, tt.last+tt.wantLen)
		}
	}
}

func TestGetMachineDataClampsCount(t *testing.T) {
	e := newTestEngine(&memStore{records: numbered(1500)})

	res, err := e.GetMachineData(context.Background(), 0, 5000)
	if err != nil {
		t.Fatalf("GetMachineData: %v", err)
	}
	if len(res.Data) != MaxRecords {
		t.Fatalf("expected clamp to %d, got %d", MaxRecords, len(res.Data))
	}

	res, err = e.GetMachineData(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("GetMachineData: %v", err)
	}
	if len(res.Data) != 1 {
		t.Fatalf("expected clamp to 1, got %d", len(res.Data))
	}
}

func TestGetMachineDataPastEnd(t *testing.T) {
	e := newTestEngine(&memStore{records: numbered(3)})

	res, err := e.GetMachineData(context.Background(), 50, 10)
	if err != nil {
		t.Fatalf("GetMachineData: %v", err)
	}
	if res.Data == nil || len(res.Data) != 0 {
		t.Fatalf("expected empty non-nil data, got %#v", res.Data)
	}
}

func TestGetMachineDataNegativeOffset(t *testing.T) {
	e := newTestEngine(&memStore{})
	_, err := e.GetMachineData(context.Background(), -1, 10)
	if KindOf(err) != KindInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestGetDataByAreaIdempotent(t *testing.T) {
	e := newTestEngine(&memStore{records: numbered(300)})

	first, err := e.GetDataByArea(context.Background(), "area-3", 5, 20)
	if err != nil {
		t.Fatalf("GetDataByArea: %v", err)
	}
	second, err := e.GetDataByArea(context.Background(), "area-3", 5, 20)
	if err != nil {
		t.Fatalf("GetDataByArea: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("results differ:\n%s\n%s", a, b)
	}
	if len(first.Data) != 20 {
		t.Fatalf("expected 20 records, got %d", len(first.Data))
	}
	for _, r := range first.Data {
		if r.AreaName != "area-3" {
			t.Fatalf("unexpected area %q", r.AreaName)
		}
	}
}

func TestGetDataByAreaDateTimeIntersects(t *testing.T) {
	var recs []models.ScheduleRecord
	for d := 1; d <= 5; d++ {
		recs = append(recs, window("Ward7", "Gauteng", "4", time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)))
	}
	recs = append(recs, window("Ward8", "Gauteng", "4", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	e := newTestEngine(&memStore{records: recs})

	res, err := e.GetDataByAreaDateTime(context.Background(), "Ward7",
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetDataByAreaDateTime: %v", err)
	}
	if len(res.Data) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Data))
	}
	if res.Data[0].StartTime.Day() != 2 || res.Data[1].StartTime.Day() != 3 {
		t.Fatalf("unexpected days: %v, %v", res.Data[0].StartTime, res.Data[1].StartTime)
	}
}

func TestGetDataByAreaDateTimeDefaults(t *testing.T) {
	store := &memStore{}
	e := newTestEngine(store)

	if _, err := e.GetDataByAreaDateTime(context.Background(), "Ward7", time.Time{}, time.Time{}); err != nil {
		t.Fatalf("GetDataByAreaDateTime: %v", err)
	}
	wantFrom := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if !store.lastFilter.From.Equal(wantFrom) || !store.lastFilter.To.Equal(wantFrom.AddDate(0, 0, 1)) {
		t.Fatalf("expected [today, today], got [%v, %v)", store.lastFilter.From, store.lastFilter.To)
	}

	start := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	if _, err := e.GetDataByAreaDateTime(context.Background(), "Ward7", start, time.Time{}); err != nil {
		t.Fatalf("GetDataByAreaDateTime: %v", err)
	}
	wantFrom = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if !store.lastFilter.From.Equal(wantFrom) || !store.lastFilter.To.Equal(wantFrom.AddDate(0, 0, 1)) {
		t.Fatalf("expected end to default to start, got [%v, %v)", store.lastFilter.From, store.lastFilter.To)
	}
}

func TestGetDataByAreaDateTimeRejectsInvertedRange(t *testing.T) {
	e := newTestEngine(&memStore{})
	_, err := e.GetDataByAreaDateTime(context.Background(), "Ward7",
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	if KindOf(err) != KindInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestGetDistinctAreas(t *testing.T) {
	today := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	recs := []models.ScheduleRecord{
		window("X", "Gauteng", "2", today),
		window("X", "Gauteng", "2", today.AddDate(0, 0, 1)),
		window("X", "Gauteng", "2", today.AddDate(0, 0, 2)),
		window("X", "Gauteng", "3", today.AddDate(0, 0, 3)),
		// outside the lookahead
		window("Y", "Gauteng", "2", today.AddDate(0, 0, DistinctAreaWindowDays+1)),
	}
	store := &memStore{records: recs}
	e := newTestEngine(store)

	res, err := e.GetDistinctAreas(context.Background(), "Gauteng")
	if err != nil {
		t.Fatalf("GetDistinctAreas: %v", err)
	}
	want := []models.GroupedArea{
		{Province: "Gauteng", Block: "2", AreaName: "X"},
		{Province: "Gauteng", Block: "3", AreaName: "X"},
	}
	if !reflect.DeepEqual(res.Data, want) {
		t.Fatalf("got %+v, want %+v", res.Data, want)
	}
	if !store.lastFilter.To.Equal(today.AddDate(0, 0, DistinctAreaWindowDays+1)) {
		t.Fatalf("unexpected window end %v", store.lastFilter.To)
	}
}

func TestGroupAreasOrdering(t *testing.T) {
	day := fixedNow
	recs := []models.ScheduleRecord{
		window("Zwide", "Eastern Cape", "5", day),
		window("Bellville", "Western Cape", "1", day),
		window("Alberton", "Gauteng", "9", day),
		window("Athlone", "Western Cape", "3", day),
		window("Alberton", "Gauteng", "9", day),
		window("Alberton", "Gauteng", "2", day),
	}
	got := GroupAreas(recs)
	want := []models.GroupedArea{
		{Province: "Eastern Cape", Block: "5", AreaName: "Zwide"},
		{Province: "Gauteng", Block: "9", AreaName: "Alberton"},
		{Province: "Gauteng", Block: "2", AreaName: "Alberton"},
		{Province: "Western Cape", Block: "3", AreaName: "Athlone"},
		{Province: "Western Cape", Block: "1", AreaName: "Bellville"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestCalendarLookups(t *testing.T) {
	store := &memStore{
		calendars: map[string]*models.CalendarAsset{
			"city-of-cape-town-area-1.ics": {Name: "city-of-cape-town-area-1.ics", HasSuburbs: true},
			"eskom-direct-1.ics":           {Name: "eskom-direct-1.ics"},
		},
		payloads: map[string][]byte{
			"eskom-direct-1.ics": []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"),
		},
		suburbs: map[string][]string{
			"city-of-cape-town-area-1.ics": {"Gardens", "Tamboerskloof"},
		},
	}
	e := newTestEngine(store)
	ctx := context.Background()

	suburbs, err := e.GetCalendarSuburbs(ctx, "city-of-cape-town-area-1.ics")
	if err != nil {
		t.Fatalf("GetCalendarSuburbs: %v", err)
	}
	if len(suburbs) != 2 {
		t.Fatalf("expected 2 suburbs, got %v", suburbs)
	}

	_, err = e.GetCalendarSuburbs(ctx, "eskom-direct-1.ics")
	if KindOf(err) != KindNotImplemented {
		t.Fatalf("expected not implemented, got %v", err)
	}
	_, err = e.GetCalendarSuburbs(ctx, "nope.ics")
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	payload, err := e.GetCalendarData(ctx, "eskom-direct-1.ics")
	if err != nil {
		t.Fatalf("GetCalendarData: %v", err)
	}
	if string(payload.Body) != "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n" {
		t.Fatalf("payload modified: %q", payload.Body)
	}
	if _, err := e.GetCalendarData(ctx, "nope.ics"); KindOf(err) != KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := e.GetAssetDataByCalendarName(ctx, "eskom-direct-1.ics"); err != nil {
		t.Fatalf("GetAssetDataByCalendarName: %v", err)
	}
	if _, err := e.GetAssetDataByCalendarName(ctx, "nope.ics"); KindOf(err) != KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreFailureSurfaced(t *testing.T) {
	boom := errors.New("disk I/O error")
	e := newTestEngine(&memStore{err: boom})

	_, err := e.GetMachineData(context.Background(), 0, 10)
	if KindOf(err) != KindStoreUnavailable {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if _, err := e.GetCalendarSuburbs(context.Background(), "x"); KindOf(err) != KindStoreUnavailable {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestGetDataByAreaDateTimeFullDayWindows(t *testing.T) {
	var recs []models.ScheduleRecord
	for d := 1; d <= 5; d++ {
		start := time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
		recs = append(recs, models.ScheduleRecord{AreaName: "Ward7", Province: "Gauteng", Block: "4", StartTime: start, EndTime: start.AddDate(0, 0, 1)})
	}
	e := newTestEngine(&memStore{records: recs})

	res, err := e.GetDataByAreaDateTime(context.Background(), "Ward7",
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetDataByAreaDateTime: %v", err)
	}
	if len(res.Data) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Data))
	}
}

func TestGetDistinctAreasSameAreaTwoProvinces(t *testing.T) {
	today := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(&memStore{records: []models.ScheduleRecord{
		window("Ward7", "Limpopo", "2", today),
		window("Ward7", "Gauteng", "2", today),
	}})

	res, err := e.GetDistinctAreas(context.Background(), "Ward7")
	if err != nil {
		t.Fatalf("GetDistinctAreas: %v", err)
	}
	want := []models.GroupedArea{
		{Province: "Gauteng", Block: "2", AreaName: "Ward7"},
		{Province: "Limpopo", Block: "2", AreaName: "Ward7"},
	}
	if !reflect.DeepEqual(res.Data, want) {
		t.Fatalf("got %+v, want %+v", res.Data, want)
	}
}

func TestEmptyPageKeepsNextOffset(t *testing.T) {
	e := newTestEngine(&memStore{})

	res, err := e.GetMachineData(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("GetMachineData: %v", err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"data":[],"next_offset":0}` {
		t.Fatalf("unexpected encoding %s", b)
	}
}
