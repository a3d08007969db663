package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestContextHelpersAnnotateEntries(t *testing.T) {
	var buf bytes.Buffer
	logger := WithSymbol(WithComponent(zerolog.New(&buf), "fetcher"), "510300")

	logger.Info().Msg("lookup")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["component"] != "fetcher" || entry["symbol"] != "510300" {
		t.Errorf("context fields missing from entry: %v", entry)
	}
}

func TestLogFetchAndLogTaskEmitTaggedEvents(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogFetch(logger, "kline", "510300", 120*time.Millisecond, nil)
	LogTask(logger, "data_update", "data_update", "running")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if !bytes.Contains(lines[0], []byte(`"event":"fetch"`)) {
		t.Errorf("fetch event missing its tag: %s", lines[0])
	}
	if !bytes.Contains(lines[1], []byte(`"event":"task"`)) {
		t.Errorf("task event missing its tag: %s", lines[1])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"bogus": zerolog.InfoLevel,
		"":      zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
