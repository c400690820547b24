package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDurationFormats(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{raw: "00:05:00", want: 5 * time.Minute},
		{raw: "01:30:15", want: time.Hour + 30*time.Minute + 15*time.Second},
		{raw: "1.02:00:00", want: 26 * time.Hour},
		{raw: "00:00:00.250", want: 250 * time.Millisecond},
		{raw: "00:50", want: 50 * time.Minute},
		{raw: "5m", want: 5 * time.Minute},
		{raw: " 250ms ", want: 250 * time.Millisecond},
		{raw: "@every 1m30s", want: 90 * time.Second},
		{raw: "", want: 0},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.raw)
		if err != nil {
			t.Fatalf("ParseDuration(%q) error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseDuration(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseDurationInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"soon", "-5m", "00:75:00", "@hourly", "@every nope"} {
		if _, err := ParseDuration(raw); err == nil {
			t.Fatalf("ParseDuration(%q): expected error", raw)
		}
	}
	if _, err := ParseDurationField("hydration.shutdown_timeout", "x"); err == nil {
		t.Fatal("expected error")
	}
	d, err := ParseDurationOrDefault("x", "", 3*time.Second)
	if err != nil || d != 3*time.Second {
		t.Fatalf("ParseDurationOrDefault = %v, %v", d, err)
	}
}

const sampleYAML = `
logging:
  level: debug
  console: true
hydration:
  history_size: 50
BackgroundRefresh:
  Catalog:
    Load:
      RefreshInterval: "00:05:00"
      HydrationTier: 2
`

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Hydration.HistorySize != 50 {
		t.Fatalf("history_size = %d", cfg.Hydration.HistorySize)
	}
	catalog, ok := cfg.BackgroundRefresh["Catalog"].(map[string]any)
	if !ok {
		t.Fatalf("BackgroundRefresh = %#v", cfg.BackgroundRefresh)
	}
	if _, ok := catalog["Load"]; !ok {
		t.Fatalf("missing Load in %#v", catalog)
	}
}

func TestDecodeRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	if _, err := Decode("c.json", []byte(`{"logging":{"level":"info"},"bogus":1}`)); err == nil {
		t.Fatal("expected unknown field error")
	}
	if _, err := Decode("c.json", []byte(`{} {}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestManagerReloadPublishesValidChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	write := func(s string) {
		if err := os.WriteFile(path, []byte(s), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write(`{"logging":{"level":"info"}}`)

	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx := context.Background()
	if m.reload(ctx) {
		t.Fatal("unchanged config should not publish")
	}

	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.Hydration.HistorySize < 0 {
			return os.ErrInvalid
		}
		return nil
	})
	write(`{"hydration":{"history_size":-1}}`)
	if m.reload(ctx) {
		t.Fatal("invalid config should be rejected")
	}

	write(`{"logging":{"level":"debug"}}`)
	if !m.reload(ctx) {
		t.Fatal("expected publish")
	}
	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level = %q", cfg.Logging.Level)
		}
	default:
		t.Fatal("subscriber got nothing")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatal("Get() not updated")
	}
}

func TestManagerWatchPicksUpWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"info"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"warn"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "warn" {
			t.Fatalf("level = %q", cfg.Logging.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestDecodeYAMLKeepsRefreshScalarsVerbatim(t *testing.T) {
	const src = `
hydration:
  history_size: 20
BackgroundRefresh:
  Base: &slow
    Load:
      RefreshInterval: 00:10:00
  Stock:
    Sync:
      RefreshInterval: 0.50
      HydrationTier: 02
      Enabled:
  Margins:
    <<: *slow
`
	cfg, err := Decode("c.yml", []byte(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Hydration.HistorySize != 20 {
		t.Fatalf("history_size = %d, want typed 20", cfg.Hydration.HistorySize)
	}
	sync := cfg.BackgroundRefresh["Stock"].(map[string]any)["Sync"].(map[string]any)
	if sync["RefreshInterval"] != "0.50" || sync["HydrationTier"] != "02" {
		t.Fatalf("Stock.Sync = %#v", sync)
	}
	if v, ok := sync["Enabled"]; !ok || v != nil {
		t.Fatalf("Enabled = %#v, want nil", v)
	}
	load := cfg.BackgroundRefresh["Margins"].(map[string]any)["Load"].(map[string]any)
	if load["RefreshInterval"] != "00:10:00" {
		t.Fatalf("merged Margins.Load = %#v", load)
	}
}

func TestDecodeEmptyYAML(t *testing.T) {
	cfg, err := Decode("c.yaml", nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Storage != nil || len(cfg.BackgroundRefresh) != 0 {
		t.Fatalf("cfg = %+v", cfg)
	}
}
