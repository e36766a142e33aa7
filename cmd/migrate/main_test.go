package main

import (
	"bytes"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func tableExists(t *testing.T, path, table string) bool {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n == 1
}

func TestRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.db")
	var stderr bytes.Buffer

	if err := run([]string{"-db", path, "up"}, &stderr); err != nil {
		t.Fatalf("up: %v", err)
	}
	for _, table := range []string{"subscribers", "delivered_items"} {
		if !tableExists(t, path, table) {
			t.Errorf("table %s missing after up", table)
		}
	}

	if err := run([]string{"-db", path, "reset"}, &stderr); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if tableExists(t, path, "subscribers") {
		t.Error("subscribers still present after reset")
	}
}

func TestRunUsage(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantUsage bool
	}{
		{name: "no command", args: nil, wantUsage: true},
		{name: "unknown command", args: []string{"drop-everything"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			err := run(tt.args, &stderr)
			if err == nil {
				t.Fatal("expected error")
			}
			if diff := cmp.Diff(tt.wantUsage, errors.Is(err, errUsage)); diff != "" {
				t.Errorf("usage error mismatch (-want +got):\n%s", diff)
			}
			if !strings.Contains(stderr.String(), "up-one") {
				t.Errorf("usage not printed, got:\n%s", stderr.String())
			}
		})
	}
}
