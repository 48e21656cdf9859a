package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDtHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		runID   string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			runID:   "run-123",
			level:   slog.LevelInfo,
			message: "created release",
			want:    "2024-06-15T14:30:45Z\tINFO\trun-123\tcreated release\n",
		},
		{
			name:    "debug level",
			runID:   "run-456",
			level:   slog.LevelDebug,
			message: "running rsync",
			want:    "2024-06-15T14:30:45Z\tDEBUG\trun-456\trunning rsync\n",
		},
		{
			name:    "with record attrs",
			runID:   "run-789",
			level:   slog.LevelInfo,
			message: "removing release",
			attrs:   []slog.Attr{slog.String("target", "deploy@web01"), slog.Int("count", 2)},
			want:    "2024-06-15T14:30:45Z\tINFO\trun-789\tremoving release\ttarget=deploy@web01\tcount=2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &dtHandler{w: &buf, runID: tt.runID, level: slog.LevelDebug}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestDtHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &dtHandler{w: &buf, runID: "run-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("deployment", "production")}).(*dtHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "deploy", 0)
	r.AddAttrs(slog.String("target", "web01"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "deployment=production") {
		t.Errorf("expected pre-set attr deployment=production, got: %q", got)
	}
	if !strings.Contains(got, "target=web01") {
		t.Errorf("expected record attr target=web01, got: %q", got)
	}
}

func TestDtHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &dtHandler{w: &buf, runID: "run-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*dtHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestDtHandler_Enabled(t *testing.T) {
	h := &dtHandler{level: slog.LevelInfo}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(DEBUG) = true below the handler level")
	}
	for _, level := range []slog.Level{slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}
}

func TestTeeHandler(t *testing.T) {
	var all, warn bytes.Buffer
	logger := slog.New(teeHandler{
		&dtHandler{w: &all, runID: "r", level: slog.LevelDebug},
		&dtHandler{w: &warn, runID: "r", level: slog.LevelWarn},
	}).With("deployment", "production")

	logger.Debug("running rsync")
	logger.Warn("no releases to prune")

	if got := strings.Count(all.String(), "\n"); got != 2 {
		t.Errorf("debug handler got %d lines, want 2:\n%s", got, all.String())
	}
	if strings.Contains(warn.String(), "running rsync") || !strings.Contains(warn.String(), "no releases to prune") {
		t.Errorf("warn handler output = %q", warn.String())
	}
	if !strings.Contains(warn.String(), "deployment=production") {
		t.Errorf("attrs were not passed to every handler: %q", warn.String())
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "test-run", slog.LevelError)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	logger.Debug("written to file only")

	data, err := os.ReadFile(filepath.Join(dir, LogFile))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "test-run\twritten to file only") {
		t.Errorf("log file = %q", data)
	}
}
