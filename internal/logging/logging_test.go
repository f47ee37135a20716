package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// captureLogOutput captures log output for testing by temporarily
// redirecting the logger to write to a buffer
func captureLogOutput(f func()) string {
	var buf bytes.Buffer

	oldLogger := defaultLogger
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	defaultLogger = slog.New(handler)

	f()

	defaultLogger = oldLogger
	return buf.String()
}

// decode parses a single JSON log line.
func decode(t *testing.T, output string) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &entry); err != nil {
		t.Fatalf("Failed to parse log line %q: %v", output, err)
	}
	return entry
}

func TestInitLoggerTo(t *testing.T) {
	defer InitLogger(LevelInfo, FormatJSON)

	tests := []struct {
		name      string
		level     Level
		format    Format
		logDebug  bool
		wantJSON  bool
		wantEmpty bool
	}{
		{name: "Debug level JSON format", level: LevelDebug, format: FormatJSON, logDebug: true, wantJSON: true},
		{name: "Info level drops debug", level: LevelInfo, format: FormatJSON, logDebug: true, wantEmpty: true},
		{name: "Info level Text format", level: LevelInfo, format: FormatText},
		{name: "Error level drops info", level: LevelError, format: FormatText, wantEmpty: true},
		{name: "Default level (invalid value)", level: Level(999), format: FormatJSON, wantJSON: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			InitLoggerTo(&buf, tt.level, tt.format)
			if GetLogger() == nil {
				t.Fatal("Expected logger to be initialized, got nil")
			}
			if tt.logDebug {
				Debug("ping")
			} else {
				Info("ping")
			}

			out := buf.String()
			if tt.wantEmpty {
				if out != "" {
					t.Errorf("Expected no output, got %q", out)
				}
				return
			}
			if !strings.Contains(out, "ping") {
				t.Fatalf("Expected output to contain message, got %q", out)
			}
			if tt.wantJSON {
				entry := decode(t, out)
				ts, _ := entry["time"].(string)
				if _, err := time.Parse(time.RFC3339, ts); err != nil {
					t.Errorf("Expected RFC3339 timestamp, got %q", ts)
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestGetRunID(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{
			name:     "Context with run ID",
			ctx:      WithRunID(context.Background(), "run-1"),
			expected: "run-1",
		},
		{
			name:     "Context without run ID",
			ctx:      context.Background(),
			expected: "",
		},
		{
			name:     "Context with wrong type value",
			ctx:      context.WithValue(context.Background(), RunIDKey, 12345),
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetRunID(tt.ctx); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestLoggingFunctions(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-42")

	tests := []struct {
		name  string
		fn    func()
		level string
		runID bool
	}{
		{name: "Debug", fn: func() { Debug("message", "key", "value") }, level: "DEBUG"},
		{name: "Info", fn: func() { Info("message", "key", "value") }, level: "INFO"},
		{name: "Warn", fn: func() { Warn("message", "key", "value") }, level: "WARN"},
		{name: "Error", fn: func() { Error("message", "key", "value") }, level: "ERROR"},
		{name: "InfoContext", fn: func() { InfoContext(ctx, "message") }, level: "INFO", runID: true},
		{name: "WarnContext", fn: func() { WarnContext(ctx, "message") }, level: "WARN", runID: true},
		{name: "ErrorContext", fn: func() { ErrorContext(ctx, "message") }, level: "ERROR", runID: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := decode(t, captureLogOutput(tt.fn))
			if entry["level"] != tt.level {
				t.Errorf("Expected level %s, got %v", tt.level, entry["level"])
			}
			if tt.runID && entry["run_id"] != "run-42" {
				t.Errorf("Expected run_id in output, got %v", entry)
			}
		})
	}
}

func TestCorpusParsed(t *testing.T) {
	entry := decode(t, captureLogOutput(func() {
		CorpusParsed("rules.tsv", 50, 49, 1, 3*time.Millisecond)
	}))
	if entry["msg"] != "corpus_parsed" || entry["level"] != "WARN" {
		t.Errorf("Unexpected entry: %v", entry)
	}
	if entry["rules"] != float64(49) || entry["rejected"] != float64(1) {
		t.Errorf("Unexpected counts: %v", entry)
	}

	entry = decode(t, captureLogOutput(func() {
		CorpusParsed("rules.tsv", 3, 3, 0, time.Millisecond)
	}))
	if entry["level"] != "INFO" {
		t.Errorf("Expected INFO for a clean corpus, got %v", entry["level"])
	}
}

func TestRowRejected(t *testing.T) {
	entry := decode(t, captureLogOutput(func() {
		RowRejected(23, "SourceChapter", errors.New("invalid number"))
	}))
	if entry["msg"] != "row_rejected" || entry["row"] != float64(23) || entry["column"] != "SourceChapter" {
		t.Errorf("Unexpected entry: %v", entry)
	}

	entry = decode(t, captureLogOutput(func() {
		RowRejected(7, "", errors.New("overlap"))
	}))
	if _, ok := entry["column"]; ok {
		t.Errorf("Expected no column attribute, got %v", entry)
	}
}

func TestTableEvents(t *testing.T) {
	ctx := WithRunID(context.Background(), "gen-1")

	entry := decode(t, captureLogOutput(func() {
		TablePublished(ctx, "Masoretic->Vulgate", 120, "gen-1", "books", 66)
	}))
	if entry["msg"] != "table_published" || entry["entries"] != float64(120) || entry["books"] != float64(66) {
		t.Errorf("Unexpected entry: %v", entry)
	}

	entry = decode(t, captureLogOutput(func() {
		PairFailed(ctx, "English->Greek", errors.New("table has 2 conflict(s)"))
	}))
	if entry["level"] != "ERROR" || entry["run_id"] != "gen-1" {
		t.Errorf("Unexpected entry: %v", entry)
	}
}
