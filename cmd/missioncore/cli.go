package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fowlengine/missioncore/internal/config"
	"github.com/fowlengine/missioncore/internal/database"
	"github.com/fowlengine/missioncore/internal/engine"
	"github.com/fowlengine/missioncore/internal/journal"
	"github.com/fowlengine/missioncore/internal/mission"
	"github.com/fowlengine/missioncore/pkg/hostapi"
)

// maxCallSize bounds one host call line; tick snapshots carry every unit.
const maxCallSize = 16 << 20

// runHost answers host calls until stdin closes or the process is signalled.
func runHost(in io.Reader, out io.Writer) error {
	setupLogging()
	if err := startServices(); err != nil {
		shutdown()
		return err
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	Logger.Info("Ready for host calls")
	return serve(ctx, extension, in, out)
}

// serve reads one call per line, a JSON array of the command followed by
// its string arguments, and writes one response line per call.
func serve(ctx context.Context, x *hostapi.Extension, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), maxCallSize)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	w := bufio.NewWriter(out)
	for {
		select {
		case <-ctx.Done():
			return w.Flush()
		case line, ok := <-lines:
			if !ok {
				if err := w.Flush(); err != nil {
					return err
				}
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if line == "" {
				continue
			}
			if _, err := fmt.Fprintln(w, call(x, line)); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
}

// call decodes one request line and hands it to the extension.
func call(x *hostapi.Extension, line string) string {
	var parts []string
	if err := json.Unmarshal([]byte(line), &parts); err != nil {
		return hostapi.ErrorResponse("invalid call: " + err.Error())
	}
	if len(parts) == 0 || parts[0] == "" {
		return hostapi.ErrorResponse("missing command")
	}
	if parts[0] == ":VERSION:EXT:" {
		return hostapi.StringResponse(x.Version())
	}
	return x.Call(parts[0], parts[1:])
}

// replaySession re-runs a journal against the layout it was recorded with.
func replaySession(ctx context.Context, journalPath, layoutPath string, cfg engine.Config) (journal.Result, error) {
	r, err := journal.Open(journalPath)
	if err != nil {
		return journal.Result{}, err
	}
	defer r.Close()

	layout, err := mission.LoadLayout(layoutPath)
	if err != nil {
		return journal.Result{}, err
	}
	reg, err := layout.Build()
	if err != nil {
		return journal.Result{}, err
	}
	eng, err := engine.New(r.Session(), reg, hostapi.NewBridge(), cfg, engine.WithLogger(Logger))
	if err != nil {
		return journal.Result{}, err
	}
	defer eng.Close()

	return journal.Replay(ctx, r, eng)
}

func replayCommand(args []string, out io.Writer) error {
	if len(args) < 2 {
		return errors.New("usage: missioncore replay <journal> <layout>")
	}
	setupLogging()
	start := time.Now()
	res, err := replaySession(context.Background(), args[0], args[1], engineConfig())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "ticks %d, commands %d, events %d in %s\n", res.Ticks, res.Commands, res.Events, time.Since(start))
	fmt.Fprintf(out, "digest %s, recorded %s\n", res.Digest, res.Recorded)
	if !res.Match() {
		return errors.New("replay did not reproduce the recorded session")
	}
	fmt.Fprintln(out, "replay matches")
	return nil
}

// validateLayout loads and builds a layout, returning its zone and route counts.
func validateLayout(path string) (zones, routes int, err error) {
	layout, err := mission.LoadLayout(path)
	if err != nil {
		return 0, 0, err
	}
	reg, err := layout.Build()
	if err != nil {
		return 0, 0, err
	}
	return len(reg.Zones()), len(reg.Routes()), nil
}

func validateCommand(args []string, out io.Writer) error {
	if len(args) < 1 {
		return errors.New("usage: missioncore validate <layout>")
	}
	zones, routes, err := validateLayout(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d zones, %d routes\n", args[0], zones, routes)
	return nil
}

// migrateCommand copies every SQLite dump in the dump directory into
// Postgres, renaming each migrated file so it is not copied twice.
func migrateCommand() error {
	setupLogging()
	dir := config.GetStorageConfig().SQLite.DumpDir
	paths, err := database.BackupPaths(dir)
	if err != nil {
		return fmt.Errorf("error getting backup database paths: %w", err)
	}
	pg, err := database.OpenPostgres(config.GetDBConfig())
	if err != nil {
		return fmt.Errorf("error connecting to postgres: %w", err)
	}
	if err := database.Migrate(pg); err != nil {
		return err
	}

	var migrated []string
	for _, path := range paths {
		src, err := database.OpenSQLite(path)
		if err != nil {
			return fmt.Errorf("error opening %s: %w", path, err)
		}
		n, err := database.CopySessions(src, pg)
		if sqlDB, cerr := src.DB(); cerr == nil {
			_ = sqlDB.Close()
		}
		if err != nil {
			return fmt.Errorf("error migrating %s: %w", path, err)
		}
		Logger.Info("Migrated backup", "path", path, "sessions", n)

		if err := os.Rename(path, path+".migrated"); err != nil {
			Logger.Error("Error renaming sqlite file", "path", path, "error", err)
		}
		migrated = append(migrated, path)
	}

	Logger.Info("Finished migrating backups, it's recommended to delete these to avoid future data duplication",
		"count", len(migrated),
		"paths", migrated)
	return nil
}
