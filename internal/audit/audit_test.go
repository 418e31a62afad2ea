package audit

import (
	"os"
	"testing"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("OPENROUTER_API_KEY", "sk-or-abc123"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := SanitiseKey("TELEGRAM_BOT_TOKEN", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
	// DSNs embed credentials and must be redacted wholesale.
	if got := SanitiseKey("DATABASE_URL", "postgres://u:p@host/db"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("MODEL_PROVIDER", "openrouter"); got != "openrouter" {
		t.Errorf("expected 'openrouter', got %q", got)
	}
	if got := SanitiseKey("MODEL_PROVIDER", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestPresence(t *testing.T) {
	t.Parallel()
	if got := presence("something"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := presence(""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.docbot/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.docbot/config.yaml" {
			t.Errorf("expected '~/.docbot/config.yaml', got %q", got)
		}
	}
}
