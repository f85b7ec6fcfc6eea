package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/storage/postgres"
)

type fakeMigrator struct {
	state     postgres.MigrationState
	upSteps   []int
	downSteps []int
	err       error
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.upSteps = append(f.upSteps, steps)
	if f.err == nil {
		f.state.Applied = f.state.Available
		f.state.Version = int64(f.state.Available)
	}
	return f.err
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.downSteps = append(f.downSteps, steps)
	if f.err == nil && f.state.Applied > 0 {
		f.state.Applied--
		f.state.Version--
	}
	return f.err
}

func (f *fakeMigrator) MigrationStatus(context.Context) (postgres.MigrationState, error) {
	return f.state, nil
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseOptions(t *testing.T) {
	getenv := func(key string) string {
		if key == "SHOP_POSTGRES_DSN" {
			return " postgres://env "
		}
		return ""
	}

	opts, err := parseOptions(newFlagSet(), []string{"-direction=DOWN", "-steps=2"}, getenv)
	if err != nil {
		t.Fatalf("parseOptions failed: %v", err)
	}
	if opts.direction != "down" || opts.steps != 2 || opts.dsn != "postgres://env" {
		t.Fatalf("unexpected options: %+v", opts)
	}

	opts, err = parseOptions(newFlagSet(), []string{"-dsn=postgres://flag"}, getenv)
	if err != nil {
		t.Fatalf("parseOptions failed: %v", err)
	}
	if opts.dsn != "postgres://flag" || opts.direction != "up" {
		t.Fatalf("flag dsn must win over env: %+v", opts)
	}
}

func TestParseOptions_Errors(t *testing.T) {
	noEnv := func(string) string { return "" }
	if _, err := parseOptions(newFlagSet(), nil, noEnv); err == nil || !strings.Contains(err.Error(), "SHOP_POSTGRES_DSN") {
		t.Fatalf("expected missing dsn error, got %v", err)
	}
	if _, err := parseOptions(newFlagSet(), []string{"-dsn=x", "-steps=-1"}, noEnv); err == nil {
		t.Fatal("expected negative steps error")
	}
}

func TestExecute(t *testing.T) {
	m := &fakeMigrator{state: postgres.MigrationState{Available: 3}}
	var out bytes.Buffer

	if err := execute(context.Background(), m, options{direction: "status"}, &out); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out.String(), "migration status: version=0 applied=0 pending=3") {
		t.Fatalf("unexpected status output: %q", out.String())
	}

	out.Reset()
	if err := execute(context.Background(), m, options{direction: "up"}, &out); err != nil {
		t.Fatalf("up failed: %v", err)
	}
	if !strings.Contains(out.String(), "migrate up ok: version=3 applied=3 pending=0") {
		t.Fatalf("unexpected up output: %q", out.String())
	}

	out.Reset()
	if err := execute(context.Background(), m, options{direction: "down", steps: 1}, &out); err != nil {
		t.Fatalf("down failed: %v", err)
	}
	if len(m.downSteps) != 1 || m.downSteps[0] != 1 {
		t.Fatalf("unexpected down calls: %v", m.downSteps)
	}
	if !strings.Contains(out.String(), "applied=2 pending=1") {
		t.Fatalf("unexpected down output: %q", out.String())
	}
}

func TestExecute_Errors(t *testing.T) {
	var out bytes.Buffer
	if err := execute(context.Background(), &fakeMigrator{}, options{direction: "sideways"}, &out); err == nil {
		t.Fatal("expected unsupported direction error")
	}

	m := &fakeMigrator{err: errors.New("locked")}
	if err := execute(context.Background(), m, options{direction: "up"}, &out); err == nil || !strings.Contains(err.Error(), "migrate up failed") {
		t.Fatalf("expected migrate up error, got %v", err)
	}
}
