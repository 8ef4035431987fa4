package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GetListen() != "127.0.0.1:8080" {
		t.Fatalf("unexpected listen %q", cfg.GetListen())
	}
	if cfg.GetDataset() != "machine_friendly" {
		t.Fatalf("unexpected dataset %q", cfg.GetDataset())
	}
	if cfg.FoldAreaCase() {
		t.Fatalf("expected exact area matching by default")
	}
	if cfg.MQTT.GetDays() != 2 || cfg.MQTT.GetTopicPrefix() != "loadshedding" {
		t.Fatalf("unexpected mqtt defaults: %+v", cfg.MQTT)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	in := &Config{
		Listen:    ":9000",
		Timezone:  "UTC",
		AreaMatch: AreaMatchNoCase,
		Calendars: []CalendarSource{{Name: "city-power-1.ics", URL: "https://example.org/city-power-1.ics"}},
		MQTT:      MQTTConfig{Enabled: true, Broker: "localhost:1883", Area: "Melville"},
	}
	if err := Save(path, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.GetListen() != ":9000" || !out.FoldAreaCase() || out.GetLocation().String() != "UTC" {
		t.Fatalf("unexpected config: %+v", out)
	}
	if len(out.Calendars) != 1 || out.MQTT.Area != "Melville" {
		t.Fatalf("unexpected config: %+v", out)
	}
}

func TestLoadRejectsBadAreaMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("area_match: fuzzy\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid area_match")
	}
}

func TestDefaultSavesAndLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GetDataset() != "machine_friendly" || cfg.FoldAreaCase() || cfg.RefreshCron == "" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.GetLocation().String() != "Africa/Johannesburg" {
		t.Fatalf("unexpected timezone %q", cfg.GetLocation())
	}
}
