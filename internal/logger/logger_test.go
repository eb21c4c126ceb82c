package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf)

	log.Info().Str("key", "value").Msg("test message")

	out := buf.String()
	if !strings.Contains(out, "test message") {
		t.Errorf("expected log output to contain message, got: %s", out)
	}
	if !strings.Contains(out, `"key":"value"`) {
		t.Errorf("expected log output to contain field, got: %s", out)
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(NewWithWriter(&buf), "journal")

	log.Info().Msg("appended")

	if !strings.Contains(buf.String(), `"component":"journal"`) {
		t.Errorf("expected component field, got: %s", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf)

	ctx := WithContext(context.Background(), log)
	got := FromContext(ctx)

	got.Info().Msg("from context")

	if !strings.Contains(buf.String(), "from context") {
		t.Errorf("expected logger from context to write to original buffer, got: %s", buf.String())
	}
}

func TestFromContextMissingLogger(t *testing.T) {
	// Should not panic and should return a usable logger.
	log := FromContext(context.Background())
	log.Debug().Msg("default logger works")
}
