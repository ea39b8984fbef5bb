package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_FirstCallWins(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	var first, second bytes.Buffer
	Init(Options{Level: "warn", Output: &first, Service: "custody-tracker"})
	Init(Options{Level: "debug", Output: &second})

	l := Component("ledger")
	l.Info().Msg("dropped")
	l.Warn().Str("actor", "admin").Msg("kept")

	if second.Len() != 0 {
		t.Fatalf("second Init must not replace the logger")
	}

	var line map[string]any
	if err := json.Unmarshal(first.Bytes(), &line); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", first.String(), err)
	}
	if line["message"] != "kept" || line["service"] != "custody-tracker" || line["component"] != "ledger" {
		t.Errorf("unexpected line: %v", line)
	}
}

func TestGet_PanicsBeforeInit(t *testing.T) {
	Reset()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Get()
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
