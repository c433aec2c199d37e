package ssh

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validTestConfig(t *testing.T) *Config {
	t.Helper()

	keyPath := filepath.Join(t.TempDir(), "id_test")
	if err := os.WriteFile(keyPath, []byte("fake key material"), 0o600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	cfg := DefaultConfig("example.com", "deploy")
	cfg.PrivateKeyPath = keyPath
	return cfg
}

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig("example.com", "deploy")

	if cfg.Port != 22 {
		t.Errorf("Expected default port 22, got %d", cfg.Port)
	}
	if cfg.AuthMethod != AuthMethodKey {
		t.Errorf("Expected key auth by default, got %s", cfg.AuthMethod)
	}
	if !cfg.StrictHostKeyChecking {
		t.Error("Expected strict host key checking by default")
	}
	if cfg.ConnectionTimeout != 30*time.Second {
		t.Errorf("Expected 30s connection timeout, got %v", cfg.ConnectionTimeout)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := validTestConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected valid config, got: %v", err)
	}

	bad := validTestConfig(t)
	bad.Host = ""
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for empty host")
	}

	bad = validTestConfig(t)
	bad.Port = 70000
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for invalid port")
	}

	bad = validTestConfig(t)
	bad.User = ""
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for empty user")
	}

	bad = validTestConfig(t)
	bad.AuthMethod = AuthMethodPassword
	bad.Password = ""
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for password auth without password")
	}

	bad = validTestConfig(t)
	bad.PrivateKeyPath = filepath.Join(t.TempDir(), "missing")
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for missing key file")
	}

	bad = validTestConfig(t)
	bad.ConnectionTimeout = 0
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for zero connection timeout")
	}
}

func TestConfig_Address(t *testing.T) {
	cfg := DefaultConfig("example.com", "deploy")
	if got := cfg.Address(); got != "example.com:22" {
		t.Errorf("Expected example.com:22, got %s", got)
	}

	cfg.Port = 2222
	if got := cfg.Address(); got != "example.com:2222" {
		t.Errorf("Expected example.com:2222, got %s", got)
	}
}

func TestQuoteCommand(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want string
	}{
		{"single", []string{"/tasks/build"}, "'/tasks/build'"},
		{"interpreter", []string{"bash", "-c", "/tasks/build"}, "'bash' '-c' '/tasks/build'"},
		{"embedded quote", []string{`it's`}, `'it'\''s'`},
		{"spaces", []string{"a b"}, "'a b'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quoteCommand(tt.argv); got != tt.want {
				t.Errorf("quoteCommand(%v) = %s, want %s", tt.argv, got, tt.want)
			}
		})
	}
}
