package hitcounter

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/yourusername/hitcounter/core"
)

func TestNewConfig(t *testing.T) {
	config := NewConfig()

	if config.Defaults.Width != core.DefaultWidth {
		t.Errorf("Defaults.Width = %d, want %d", config.Defaults.Width, core.DefaultWidth)
	}
	if config.Defaults.Ordering != "permissive" {
		t.Errorf("Defaults.Ordering = %q, want permissive", config.Defaults.Ordering)
	}
	if config.Defaults.Lookup != "scan" {
		t.Errorf("Defaults.Lookup = %q, want scan", config.Defaults.Lookup)
	}
	if !config.Defaults.Enabled {
		t.Error("Defaults.Enabled = false, want true")
	}
	if config.KeyExtractor != "ip" {
		t.Errorf("KeyExtractor = %q, want ip", config.KeyExtractor)
	}
	if config.CleanupAge != "1h" {
		t.Errorf("CleanupAge = %q, want 1h", config.CleanupAge)
	}
	if config.Policies == nil {
		t.Error("Policies map should be initialized")
	}
}

func TestPolicyConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		policy   PolicyConfig
		wantErrs []error
	}{
		{name: "valid", policy: PolicyConfig{Width: 300, Enabled: true}},
		{name: "valid with retention", policy: PolicyConfig{Width: 300, Retention: 300, Ordering: "strict", Lookup: "search"}},
		{name: "zero width", policy: PolicyConfig{Width: 0}, wantErrs: []error{ErrInvalidWindow}},
		{name: "retention below width", policy: PolicyConfig{Width: 300, Retention: 10}, wantErrs: []error{ErrInvalidRetention}},
		{name: "negative limit", policy: PolicyConfig{Width: 300, Limit: -1}, wantErrs: []error{ErrInvalidLimit}},
		{
			name:     "several problems",
			policy:   PolicyConfig{Width: -1, Limit: -5, Ordering: "sideways", Lookup: "guess"},
			wantErrs: []error{ErrInvalidWindow, ErrInvalidLimit},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if len(tt.wantErrs) == 0 {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			for _, want := range tt.wantErrs {
				if !errors.Is(err, want) {
					t.Errorf("Validate() error = %v, want it to include %v", err, want)
				}
			}
		})
	}

	// every problem is reported, not just the first
	bad := PolicyConfig{Width: -1, Limit: -5, Ordering: "sideways", Lookup: "guess"}
	if got := len(multierr.Errors(bad.Validate())); got != 4 {
		t.Errorf("Validate() reported %d errors, want 4", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	config := NewConfig()
	config.Policies["/a"] = PolicyConfig{Width: 0, Enabled: true}
	config.Policies["/b"] = PolicyConfig{Width: 10, Retention: 5, Enabled: true}
	config.CleanupAge = "soon"

	err := config.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() error = %v, want ErrInvalidConfig", err)
	}
	if !errors.Is(err, ErrInvalidWindow) || !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("Validate() error = %v, want both route problems", err)
	}

	if err := NewConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfig_GetPolicy(t *testing.T) {
	config := NewConfig()
	login := PolicyConfig{Width: 60, Limit: 5, Enabled: true}
	if err := config.SetPolicy("/login", login); err != nil {
		t.Fatalf("SetPolicy() failed: %v", err)
	}

	if got := config.GetPolicy("/login"); got != login {
		t.Errorf("GetPolicy(/login) = %+v, want %+v", got, login)
	}
	if got := config.GetPolicy("/elsewhere"); got != config.Defaults {
		t.Errorf("GetPolicy(/elsewhere) = %+v, want defaults", got)
	}

	if err := config.SetPolicy("/bad", PolicyConfig{Width: -1}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SetPolicy(invalid) error = %v, want ErrInvalidConfig", err)
	}
	if _, exists := config.Policies["/bad"]; exists {
		t.Error("invalid policy was stored")
	}
}

func TestPolicyConfig_WindowConfig(t *testing.T) {
	policy := PolicyConfig{Width: 60, Retention: 120, Ordering: "strict", Lookup: "search"}
	cfg, err := policy.WindowConfig()
	if err != nil {
		t.Fatalf("WindowConfig() failed: %v", err)
	}
	want := core.Config{Width: 60, Retention: 120, Policy: core.Strict, Lookup: core.LookupSearch}
	if cfg != want {
		t.Errorf("WindowConfig() = %+v, want %+v", cfg, want)
	}

	if _, err := (&PolicyConfig{Width: 60, Ordering: "sideways"}).WindowConfig(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("WindowConfig(bad ordering) error = %v, want ErrInvalidConfig", err)
	}
}

func TestConfig_CleanupDuration(t *testing.T) {
	tests := []struct {
		age     string
		want    time.Duration
		wantErr bool
	}{
		{age: "", want: 0},
		{age: "0", want: 0},
		{age: "30m", want: 30 * time.Minute},
		{age: "-1h", wantErr: true},
		{age: "tomorrow", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.age, func(t *testing.T) {
			got, err := (&Config{CleanupAge: tt.age}).CleanupDuration()
			if tt.wantErr {
				if err == nil {
					t.Error("CleanupDuration() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("CleanupDuration() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("CleanupDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpDir := t.TempDir()

	valid := `
defaults:
  width: 300
  ordering: permissive
  enabled: true

policies:
  "/api/login":
    width: 60
    limit: 5
    ordering: strict
    enabled: true

  "/api/search":
    width: 10
    lookup: search
    retention: 20
    enabled: true

key_extractor: "header:X-API-Key"
cleanup_age: "30m"
`
	path := filepath.Join(tmpDir, "valid.yaml")
	if err := os.WriteFile(path, []byte(valid), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	config, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile() failed: %v", err)
	}
	if config.KeyExtractor != "header:X-API-Key" {
		t.Errorf("KeyExtractor = %q", config.KeyExtractor)
	}
	login, ok := config.Policies["/api/login"]
	if !ok {
		t.Fatal("/api/login policy missing")
	}
	if login.Width != 60 || login.Limit != 5 || login.Ordering != "strict" {
		t.Errorf("/api/login = %+v", login)
	}
	if search := config.Policies["/api/search"]; search.Lookup != "search" || search.Retention != 20 {
		t.Errorf("/api/search = %+v", search)
	}

	m, err := NewMeter(WithConfigFile(path))
	if err != nil {
		t.Fatalf("NewMeter(WithConfigFile) failed: %v", err)
	}
	if m == nil {
		t.Fatal("NewMeter returned nil")
	}

	t.Run("defaults filled", func(t *testing.T) {
		path := filepath.Join(tmpDir, "minimal.yaml")
		if err := os.WriteFile(path, []byte("defaults:\n  enabled: true\n"), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		config, err := LoadConfigFromFile(path)
		if err != nil {
			t.Fatalf("LoadConfigFromFile() failed: %v", err)
		}
		if config.Defaults.Width != core.DefaultWidth {
			t.Errorf("Defaults.Width = %d, want %d", config.Defaults.Width, core.DefaultWidth)
		}
		if config.KeyExtractor != "ip" || config.CleanupAge != "1h" {
			t.Errorf("defaults not applied: %+v", config)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(tmpDir, "broken.yaml")
		if err := os.WriteFile(path, []byte("defaults: [unclosed"), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		if _, err := LoadConfigFromFile(path); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("error = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("invalid policy", func(t *testing.T) {
		path := filepath.Join(tmpDir, "invalid.yaml")
		data := "defaults:\n  width: 10\n  retention: 5\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		if _, err := LoadConfigFromFile(path); !errors.Is(err, ErrInvalidRetention) {
			t.Errorf("error = %v, want ErrInvalidRetention", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfigFromFile(filepath.Join(tmpDir, "nope.yaml")); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("error = %v, want ErrInvalidConfig", err)
		}
	})
}
