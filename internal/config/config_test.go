package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := Decode("c.json", []byte(`{"telegram":{"token":"x"},"bogus":1}`))
	if err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("err = %v, want unknown field bogus", err)
	}
}

func TestDecodeTrailingData(t *testing.T) {
	t.Parallel()
	_, err := Decode("c.json", []byte(`{"telegram":{}} {"telegram":{}}`))
	if !errors.Is(err, ErrTrailingData) {
		t.Fatalf("err = %v, want ErrTrailingData", err)
	}
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	doc := `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
  poll_timeout: 10s
logging:
  level: debug
  console: true
focus:
  default_budget_minutes: 45
checkin:
  enabled: true
  daily_prompt: "30 8 * * 1-5"
  chats: [-1001]
storage:
  driver: file
  path: ./audit.jsonl
`
	cfg, err := Decode("focusbot.yaml", []byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Focus.DefaultBudgetMinutes != 45 {
		t.Fatalf("focus = %+v", cfg.Focus)
	}
	if cfg.Checkin == nil || !cfg.Checkin.Enabled || cfg.Checkin.Chats[0] != -1001 {
		t.Fatalf("checkin = %+v", cfg.Checkin)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestDecodeYAMLUnknownField(t *testing.T) {
	t.Parallel()
	if _, err := Decode("c.yml", []byte("focus:\n  budget: 3\n")); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: " 10s ", want: 10 * time.Second},
		{raw: "2m", want: 2 * time.Minute},
		{raw: "-1s", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("x", tt.raw)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseDurationField(%q) err = %v", tt.raw, err)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("ParseDurationField(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
	d, err := ParseDurationOrDefault("x", "", time.Hour)
	if err != nil || d != time.Hour {
		t.Fatalf("ParseDurationOrDefault = %v, %v", d, err)
	}
}

func TestIntOrDefault(t *testing.T) {
	t.Parallel()
	if v, _ := IntOrDefault("x", 0, 25); v != 25 {
		t.Fatalf("zero -> %d, want 25", v)
	}
	if v, _ := IntOrDefault("x", 7, 25); v != 7 {
		t.Fatalf("7 -> %d", v)
	}
	if _, err := IntOrDefault("x", -1, 25); err == nil {
		t.Fatal("negative accepted")
	}
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestManagerReloadPublishesChanges(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	writeConfig(t, path, `{"focus":{"default_budget_minutes":25}}`)

	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	published, err := m.Reload(context.Background())
	if err != nil || published {
		t.Fatalf("unchanged reload = %v, %v; want false, nil", published, err)
	}

	writeConfig(t, path, `{"focus":{"default_budget_minutes":50}}`)
	published, err = m.Reload(context.Background())
	if err != nil || !published {
		t.Fatalf("changed reload = %v, %v; want true, nil", published, err)
	}
	select {
	case cfg := <-ch:
		if cfg.Focus.DefaultBudgetMinutes != 50 {
			t.Fatalf("published budget = %d", cfg.Focus.DefaultBudgetMinutes)
		}
	default:
		t.Fatal("no config published")
	}
	if m.Get().Focus.DefaultBudgetMinutes != 50 {
		t.Fatalf("Get budget = %d", m.Get().Focus.DefaultBudgetMinutes)
	}
}

func TestManagerValidatorRejects(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	writeConfig(t, path, `{"focus":{"default_budget_minutes":25}}`)

	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	bad := errors.New("nope")
	m.SetValidator(func(ctx context.Context, cfg *Config) error { return bad })

	writeConfig(t, path, `{"focus":{"default_budget_minutes":99}}`)
	if _, err := m.Reload(context.Background()); !errors.Is(err, bad) {
		t.Fatalf("err = %v, want validator error", err)
	}
	if m.Get().Focus.DefaultBudgetMinutes != 25 {
		t.Fatal("rejected config was committed")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Telegram: TelegramConfig{Token: "a"}, Focus: FocusConfig{DefaultBudgetMinutes: 25}}
	newCfg := &Config{Telegram: TelegramConfig{Token: "b"}, Focus: FocusConfig{DefaultBudgetMinutes: 30}}

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if !HasSection(changed, "focus") || !HasSection(changed, "telegram.token") {
		t.Fatalf("changed = %v", changed)
	}
	if HasSection(changed, "telegram") || HasSection(changed, "logging") {
		t.Fatalf("unexpected sections in %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}

	changed, _ = SummarizeConfigChange(newCfg, newCfg)
	if len(changed) != 0 {
		t.Fatalf("identical configs changed = %v", changed)
	}
}
