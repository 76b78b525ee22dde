package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_CreatesDefaultFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DirName)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("default config.yaml not created: %v", err)
	}

	if cfg.Backend != BackendSheet {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendSheet)
	}
	if cfg.Debounce != time.Second {
		t.Errorf("Debounce = %s, want 1s", cfg.Debounce)
	}
	if cfg.WriteTimeout != 15*time.Second {
		t.Errorf("WriteTimeout = %s, want 15s", cfg.WriteTimeout)
	}
	if cfg.RetryAttempts != 3 || cfg.RetryDelay != 1500*time.Millisecond {
		t.Errorf("retry = %d x %s, want 3 x 1.5s", cfg.RetryAttempts, cfg.RetryDelay)
	}
	if cfg.Role != "admin" {
		t.Errorf("Role = %q, want admin", cfg.Role)
	}
	if cfg.Endpoint != "" {
		t.Errorf("Endpoint = %q, want empty", cfg.Endpoint)
	}
	if cfg.DataDir != dir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, dir)
	}
}

func TestLoad_KeepsExistingFile(t *testing.T) {
	dir := t.TempDir()
	content := "backend: realtime\nendpoint: http://localhost:8080\ndebounce: 250ms\nretry:\n  attempts: 5\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend != BackendRealtime {
		t.Errorf("Backend = %q", cfg.Backend)
	}
	if cfg.Endpoint != "http://localhost:8080" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.Debounce != 250*time.Millisecond {
		t.Errorf("Debounce = %s", cfg.Debounce)
	}
	if cfg.RetryAttempts != 5 {
		t.Errorf("RetryAttempts = %d", cfg.RetryAttempts)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if string(data) != content {
		t.Error("existing config.yaml was rewritten")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("JADWAL_ROLE", "teacher")
	t.Setenv("JADWAL_RETRY_ATTEMPTS", "7")
	t.Setenv("JADWAL_ENDPOINT", "https://example.test/exec")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Role != "teacher" {
		t.Errorf("Role = %q, want teacher", cfg.Role)
	}
	if cfg.RetryAttempts != 7 {
		t.Errorf("RetryAttempts = %d, want 7", cfg.RetryAttempts)
	}
	if cfg.Endpoint != "https://example.test/exec" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
}

func TestLoad_WebAppEnvironmentName(t *testing.T) {
	t.Setenv("VITE_SHEET_URL", "https://script.example.test/exec")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Endpoint != "https://script.example.test/exec" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"backend", "backend: carrier-pigeon\n"},
		{"role", "role: superuser\n"},
		{"debounce", "debounce: 0s\n"},
		{"attempts", "retry:\n  attempts: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(tt.content), 0o644); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			if _, err := Load(dir); err == nil {
				t.Error("Load() expected error")
			}
		})
	}
}
