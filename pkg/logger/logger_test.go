package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat("yaml")); err == nil {
		t.Fatal("expected an error for an unknown format")
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithFormat(FormatJSON), WithOutput(&buf), WithCaller(false)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	_ = SetLevelString("info")

	Get().Info(context.Background(), "room created", String("code", "AB12"), Int("players", 1))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "room created" {
		t.Errorf("msg = %v, want %q", rec["msg"], "room created")
	}
	if rec["code"] != "AB12" {
		t.Errorf("code = %v, want AB12", rec["code"])
	}
	if _, ok := rec["source"]; ok {
		t.Error("source field should be omitted when caller is disabled")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	if err := SetLevelString("warn"); err != nil {
		t.Fatalf("set level: %v", err)
	}
	defer func() { _ = SetLevelString("info") }()

	ctx := context.Background()
	Get().Info(ctx, "hidden")
	Get().Warn(ctx, "shown", Error(errors.New("boom")))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "boom") {
		t.Errorf("warn record missing: %q", out)
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Errorf("expected caller source in %q", out)
	}
}

func TestSetLevelStringRejectsUnknown(t *testing.T) {
	if err := SetLevelString("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	for _, lvl := range []string{"debug", "INFO", " warning ", "error", ""} {
		if err := SetLevelString(lvl); err != nil {
			t.Errorf("SetLevelString(%q) = %v", lvl, err)
		}
	}
}

func TestLoggerNamedAndWith(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf), WithCaller(false)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	_ = SetLevelString("info")

	Named("lobby").With(String("room", "ZZ99")).Info(context.Background(), "joined")

	out := buf.String()
	if !strings.Contains(out, "lobby.room=ZZ99") {
		t.Errorf("expected grouped field in %q", out)
	}
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Error(context.Background(), "nothing to see")
	if l.Named("x").With(Bool("k", true)) == nil {
		t.Fatal("nop logger derivatives must not be nil")
	}
}
