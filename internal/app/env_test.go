package app

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func mapLookup(values map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestEnvReader(t *testing.T) {
	r := NewEnvReader(mapLookup(map[string]string{
		"S":     "  value ",
		"EMPTY": "   ",
		"B":     "off",
		"I":     "12",
		"D":     "250ms",
		"F":     "0.25",
		"BAD_I": "0",
		"BAD_F": "2",
	}))

	s, b, i, d, f := "default", true, 1, time.Second, 0.5
	empty := "keep"
	r.String("S", &s)
	r.String("EMPTY", &empty)
	r.Bool("B", &b)
	r.Int("I", &i, func(v int) bool { return v > 0 }, "must be > 0")
	r.Duration("D", &d, func(v time.Duration) bool { return v > 0 }, "must be > 0")
	r.Float("F", &f, func(v float64) bool { return v > 0 && v <= 1 }, "must be in (0, 1]")

	if s != "value" || empty != "keep" || b || i != 12 || d != 250*time.Millisecond || f != 0.25 {
		t.Fatalf("unexpected values: %q %q %v %d %s %v", s, empty, b, i, d, f)
	}
	if len(r.Warnings()) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings())
	}

	r.Int("BAD_I", &i, func(v int) bool { return v > 0 }, "must be > 0")
	r.Float("BAD_F", &f, func(v float64) bool { return v > 0 && v <= 1 }, "must be in (0, 1]")
	if i != 12 || f != 0.25 {
		t.Fatal("invalid values must keep previous value")
	}
	if len(r.Warnings()) != 2 {
		t.Fatalf("expected 2 warnings, got %v", r.Warnings())
	}
}

func TestParseBool(t *testing.T) {
	trueValue, err := ParseBool(" YES ")
	if err != nil || !trueValue {
		t.Fatalf("expected true, got %v (%v)", trueValue, err)
	}
	falseValue, err := ParseBool("off")
	if err != nil || falseValue {
		t.Fatalf("expected false, got %v (%v)", falseValue, err)
	}
	if _, err := ParseBool("sometimes"); err == nil {
		t.Fatal("expected error for invalid bool value")
	}
}

func TestParseIntAndDuration(t *testing.T) {
	if v, err := ParseInt(" 12 ", func(v int) bool { return v > 0 }, "must be > 0"); err != nil || v != 12 {
		t.Fatalf("unexpected result %d (%v)", v, err)
	}
	if _, err := ParseInt("0", func(v int) bool { return v > 0 }, "must be > 0"); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := ParseDuration("-1ms", func(v time.Duration) bool { return v >= 0 }, "must be >= 0"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSetupLogger(t *testing.T) {
	defer log.SetFormatter(&log.TextFormatter{})
	defer log.SetLevel(log.InfoLevel)

	SetupLogger(mapLookup(map[string]string{EnvLogFormat: "JSON", EnvLogLevel: "debug"}))
	if _, ok := log.StandardLogger().Formatter.(*log.JSONFormatter); !ok {
		t.Fatal("expected json formatter")
	}
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}

	SetupLogger(mapLookup(map[string]string{EnvLogLevel: "loud"}))
	if _, ok := log.StandardLogger().Formatter.(*log.TextFormatter); !ok {
		t.Fatal("expected text formatter")
	}
	if log.GetLevel() != log.InfoLevel {
		t.Fatalf("expected info level on invalid value, got %s", log.GetLevel())
	}
}
