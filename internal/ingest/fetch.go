package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jgoulah/shedcal/internal/config"
)

// maxBodySize bounds a single downloaded source
const maxBodySize = 64 << 20

// Fetcher downloads schedule sources over HTTP
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher with a request timeout
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads url and returns the body
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "shedcal")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode, string(snippet))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("response larger than %d bytes", maxBodySize)
	}
	return body, nil
}

// SyncResult summarizes one Sync run
type SyncResult struct {
	Calendars int
	Records   int
	Errors    []error
}

// Syncer fetches every configured source and imports it
type Syncer struct {
	cfg     *config.Config
	store   Store
	fetcher *Fetcher
	log     zerolog.Logger
}

// NewSyncer creates a syncer for the sources in cfg
func NewSyncer(cfg *config.Config, store Store, fetcher *Fetcher, log zerolog.Logger) *Syncer {
	return &Syncer{cfg: cfg, store: store, fetcher: fetcher, log: log}
}

// Sync fetches all sources. A failing source is logged and recorded in the
// result; the remaining sources are still processed.
func (s *Syncer) Sync(ctx context.Context) SyncResult {
	var res SyncResult

	if url := s.cfg.MachineFriendlyURL; url != "" {
		n, err := s.syncRecords(ctx, url)
		if err != nil {
			s.log.Error().Err(err).Str("url", url).Msg("machine friendly sync failed")
			res.Errors = append(res.Errors, fmt.Errorf("%s: %w", url, err))
		} else {
			res.Records = n
		}
	}

	for _, src := range s.cfg.Calendars {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err)
			break
		}

		body, err := s.fetcher.Fetch(ctx, src.URL)
		if err == nil {
			_, err = ImportCalendar(ctx, s.store, src.Name, src.URL, body)
		}
		if err != nil {
			s.log.Error().Err(err).Str("calendar", src.Name).Str("url", src.URL).Msg("calendar sync failed")
			res.Errors = append(res.Errors, fmt.Errorf("%s: %w", src.Name, err))
			continue
		}
		res.Calendars++
	}

	s.log.Info().
		Int("calendars", res.Calendars).
		Int("records", res.Records).
		Int("errors", len(res.Errors)).
		Msg("source sync completed")
	return res
}

func (s *Syncer) syncRecords(ctx context.Context, url string) (int, error) {
	body, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return 0, err
	}
	res, err := ImportCSV(ctx, s.store, s.cfg.GetDataset(), bytes.NewReader(body), s.cfg.GetLocation())
	if err != nil {
		return 0, err
	}
	return res.Inserted, nil
}
