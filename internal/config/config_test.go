package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chanrelay/chanrelay/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const minimalConfig = `
telegram:
  admin_user_id: 123456
sessions:
  - owner: main
    token: "12345:TEST_TOKEN"
`

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, minimalConfig)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Logger.Level != config.DefaultLogLevel {
		t.Errorf("logger level = %q, want %q", cfg.Logger.Level, config.DefaultLogLevel)
	}
	if cfg.Database.Path != config.DefaultDBPath {
		t.Errorf("database path = %q, want %q", cfg.Database.Path, config.DefaultDBPath)
	}
	if cfg.Engine.RateCapacity != config.DefaultRateCapacity {
		t.Errorf("rate capacity = %d, want %d", cfg.Engine.RateCapacity, config.DefaultRateCapacity)
	}
	if cfg.Engine.RateInterval != config.DefaultRateInterval {
		t.Errorf("rate interval = %v, want %v", cfg.Engine.RateInterval, config.DefaultRateInterval)
	}
	if cfg.Scheduler.RetentionDays != config.DefaultRetentionDays {
		t.Errorf("retention days = %d, want %d", cfg.Scheduler.RetentionDays, config.DefaultRetentionDays)
	}

	sweep, ok := cfg.Scheduler.Tasks["resume_sweep"]
	if !ok || !sweep.Enabled || sweep.Schedule != config.DefaultResumeSweepSchedule {
		t.Errorf("resume_sweep task = %+v, want enabled with default schedule", sweep)
	}
	if len(cfg.Sessions) != 1 || cfg.Sessions[0].Owner != "main" {
		t.Errorf("sessions = %+v, want one session owned by main", cfg.Sessions)
	}
}

func TestLoadConfigOverridesFromFile(t *testing.T) {
	path := writeConfigFile(t, `
logger:
  level: debug
  json: false
database:
  path: /tmp/relay-test.db
telegram:
  admin_user_id: 42
sessions:
  - owner: main
    token: "11111:AAA"
  - owner: backup
    token: "22222:BBB"
engine:
  rate_capacity: 5
  rate_interval: 30s
  group_window: 2s
`)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Logger.Level != "debug" || cfg.Logger.JSON {
		t.Errorf("logger = %+v, want debug text logging", cfg.Logger)
	}
	if cfg.Engine.RateCapacity != 5 {
		t.Errorf("rate capacity = %d, want 5", cfg.Engine.RateCapacity)
	}
	if cfg.Engine.RateInterval != 30*time.Second {
		t.Errorf("rate interval = %v, want 30s", cfg.Engine.RateInterval)
	}
	if cfg.Engine.GroupWindow != 2*time.Second {
		t.Errorf("group window = %v, want 2s", cfg.Engine.GroupWindow)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Engine.RecipientDelay != config.DefaultRecipientDelay {
		t.Errorf("recipient delay = %v, want default %v", cfg.Engine.RecipientDelay, config.DefaultRecipientDelay)
	}
	if len(cfg.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(cfg.Sessions))
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "no sessions",
			content: `
telegram:
  admin_user_id: 42
`,
		},
		{
			name: "duplicate session owners",
			content: `
telegram:
  admin_user_id: 42
sessions:
  - owner: main
    token: "11111:AAA"
  - owner: main
    token: "22222:BBB"
`,
		},
		{
			name: "session missing token",
			content: `
telegram:
  admin_user_id: 42
sessions:
  - owner: main
`,
		},
		{
			name: "missing admin user",
			content: `
sessions:
  - owner: main
    token: "11111:AAA"
`,
		},
		{
			name: "send delay bounds inverted",
			content: `
telegram:
  admin_user_id: 42
sessions:
  - owner: main
    token: "11111:AAA"
engine:
  min_send_delay: 5s
  max_send_delay: 1s
`,
		},
		{
			name: "enabled task without schedule",
			content: `
telegram:
  admin_user_id: 42
sessions:
  - owner: main
    token: "11111:AAA"
scheduler:
  tasks:
    resume_sweep:
      enabled: true
      schedule: ""
`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfigFile(t, tc.content)
			_, err := config.LoadConfig(path)
			if err == nil {
				t.Fatal("LoadConfig accepted invalid configuration")
			}
			if !errors.Is(err, config.ErrConfiguration) {
				t.Errorf("error %v is not ErrConfiguration", err)
			}
		})
	}
}

func TestLoadConfigMissingFileFailsValidation(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("LoadConfig succeeded without sessions configured")
	}
}
