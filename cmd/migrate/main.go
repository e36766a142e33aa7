package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"freegames_bot/internal/config"
	"freegames_bot/migrations"
)

type command struct {
	help string
	run  func(db *sql.DB) error
}

var commands = map[string]command{
	"up":      {"Migrate to the latest version", func(db *sql.DB) error { return goose.Up(db, ".") }},
	"up-one":  {"Migrate one version up", func(db *sql.DB) error { return goose.UpByOne(db, ".") }},
	"down":    {"Roll back one version", func(db *sql.DB) error { return goose.Down(db, ".") }},
	"status":  {"Show migration status", func(db *sql.DB) error { return goose.Status(db, ".") }},
	"version": {"Show current version", func(db *sql.DB) error { return goose.Version(db, ".") }},
	"reset":   {"Roll back all migrations", func(db *sql.DB) error { return goose.Reset(db, ".") }},
}

var errUsage = errors.New("usage")

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(os.Args[1:], os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			log.Error("migrate", "error", err)
		}
		os.Exit(1)
	}
}

// run parses args and applies one goose command to the bot database.
func run(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", config.DatabasePath(), "path to sqlite database")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if fs.NArg() == 0 {
		usage(stderr)
		return errUsage
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		usage(stderr)
		return fmt.Errorf("unknown command %q", name)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := cmd.run(db); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Usage: migrate [-db path] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s  %s\n", name, commands[name].help)
	}
}
