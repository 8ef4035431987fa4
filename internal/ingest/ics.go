package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/jgoulah/shedcal/internal/database"
	"github.com/jgoulah/shedcal/pkg/models"
)

var textUnescaper = strings.NewReplacer(`\,`, ",", `\;`, ";", `\\`, `\`, `\n`, ",", `\N`, ",")

// ParseCalendar validates an ICS payload and derives its metadata. Distinct
// LOCATION values become the calendar's suburbs; a calendar without any
// carries no suburb data.
func ParseCalendar(name, sourceURL string, body []byte) (database.Calendar, error) {
	if len(body) == 0 {
		return database.Calendar{}, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return database.Calendar{}, fmt.Errorf("parsing ICS: %w", err)
	}

	events := cal.Events()
	seen := make(map[string]struct{})
	var suburbs []string
	for _, ev := range events {
		p := ev.GetProperty(ical.ComponentPropertyLocation)
		if p == nil {
			continue
		}
		for _, s := range strings.Split(textUnescaper.Replace(p.Value), ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			suburbs = append(suburbs, s)
		}
	}
	sort.Strings(suburbs)

	sum := sha256.Sum256(body)
	fileName := name
	if sourceURL != "" {
		fileName = path.Base(sourceURL)
	}

	return database.Calendar{
		Asset: models.CalendarAsset{
			Name:        name,
			FileName:    fileName,
			SourceURL:   sourceURL,
			ContentType: "text/calendar",
			Size:        int64(len(body)),
			SHA256:      hex.EncodeToString(sum[:]),
			EventCount:  len(events),
			HasSuburbs:  suburbs != nil,
			UpdatedAt:   time.Now(),
		},
		Suburbs: suburbs,
		Payload: body,
	}, nil
}

// ImportCalendar parses and stores an ICS payload under name
func ImportCalendar(ctx context.Context, store Store, name, sourceURL string, body []byte) (models.CalendarAsset, error) {
	cal, err := ParseCalendar(name, sourceURL, body)
	if err != nil {
		return models.CalendarAsset{}, err
	}
	if err := store.UpsertCalendar(ctx, cal); err != nil {
		return models.CalendarAsset{}, err
	}
	return cal.Asset, nil
}
