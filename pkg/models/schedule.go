package models

import "time"

// ScheduleRecord is one load-shedding window for an area
type ScheduleRecord struct {
	ID        int64             `json:"id"`
	AreaName  string            `json:"area_name"`
	Province  string            `json:"province"`
	Block     string            `json:"block"` // stage or zone label
	StartTime time.Time         `json:"start"`
	EndTime   time.Time         `json:"finsh"`
	Extra     map[string]string `json:"extra,omitempty"` // passed through unmodified
}

// CalendarAsset describes a stored calendar file
type CalendarAsset struct {
	Name        string    `json:"name"`
	FileName    string    `json:"file_name"`
	SourceURL   string    `json:"browser_download_url,omitempty"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	EventCount  int       `json:"event_count"`
	HasSuburbs  bool      `json:"has_suburbs"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CalendarPayload is the raw stored representation of a calendar
type CalendarPayload struct {
	Name        string
	ContentType string
	Body        []byte
}

// GroupedArea is one distinct (province, block, area) entry
type GroupedArea struct {
	Province string `json:"province"`
	Block    string `json:"block"`
	AreaName string `json:"area_name"`
}

// MachineData is a window of schedule records
type MachineData struct {
	Data       []ScheduleRecord `json:"data"`
	NextOffset int              `json:"next_offset"`
}

// MachineDataGrouped is the distinct-area listing
type MachineDataGrouped struct {
	Data []GroupedArea `json:"data"`
}

// RecordFilter selects records by attribute. Zero From/To means unbounded,
// Limit <= 0 means no limit.
type RecordFilter struct {
	AreaName      string
	MatchProvince bool // also match AreaName against the province
	From          time.Time
	To            time.Time
	Offset        int
	Limit         int
}
