package main

import (
	"encoding/json"
	"flag"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cuemby/ghmirror/pkg/storage"
)

var (
	dbPath = flag.String("db-path", "/var/lib/ghmirror", "Mirror store directory")
	prune  = flag.Bool("prune", false, "Delete change-event log files past the retention window")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("GHMirror Store Check")
	log.Println("====================")

	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		log.Fatalf("Store not found at %s", *dbPath)
	}

	log.Printf("Store: %s", *dbPath)
	log.Printf("Prune: %v", *prune)

	report, err := inspectStore(*dbPath)
	if err != nil {
		log.Fatalf("Inspection failed: %v", err)
	}

	log.Printf("Owner documents:  %d", report.owners)
	log.Printf("Repositories:     %d", report.repositories)
	log.Printf("Issues:           %d", report.issues)
	log.Printf("Users:            %d", report.users)
	log.Printf("Change-log files: %d", report.changeLogs)
	if report.quarantined > 0 {
		log.Printf("Quarantined files: %d (under old/, left by a configuration change)", report.quarantined)
	}

	if len(report.invalid) > 0 {
		log.Printf("⚠ %d documents do not parse:", len(report.invalid))
		for _, name := range report.invalid {
			log.Printf("  %s", name)
		}
	} else {
		log.Println("✓ All documents parse")
	}

	if *prune {
		pruneChangeEvents(*dbPath)
	}

	if len(report.invalid) > 0 {
		os.Exit(1)
	}
}

// storeReport summarizes one walk over the document tree
type storeReport struct {
	owners       int
	repositories int
	issues       int
	users        int
	changeLogs   int
	quarantined  int
	invalid      []string
}

// inspectStore walks the store and classifies every JSON document by its
// path. The path layout is the one the mirror writes: owner documents at
// <name>/<name>.json, repositories at <owner>/<repo>/<repo>.json, issues
// at <owner>/<repo>/<number>.json, users under users/ and the change log
// under events/.
func inspectStore(root string) (*storeReport, error) {
	report := &storeReport{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if strings.HasPrefix(rel, "old/") {
			report.quarantined++
			return nil
		}
		if !strings.HasSuffix(rel, ".json") {
			// Scalar keys and the processed-event list are plain text
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !json.Valid(data) {
			report.invalid = append(report.invalid, rel)
			return nil
		}

		parts := strings.Split(rel, "/")
		switch {
		case parts[0] == "events":
			report.changeLogs++
		case parts[0] == "users":
			report.users++
		case len(parts) == 2:
			report.owners++
		case len(parts) == 3:
			if _, err := strconv.Atoi(strings.TrimSuffix(parts[2], ".json")); err == nil {
				report.issues++
			} else {
				report.repositories++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func pruneChangeEvents(dir string) {
	store, err := storage.NewFileStore(dir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	pruned, err := store.PruneChangeEvents()
	if err != nil {
		log.Fatalf("Prune failed: %v", err)
	}
	if err := store.Close(); err != nil {
		log.Fatalf("Failed to close store: %v", err)
	}

	if pruned == 0 {
		log.Println("✓ No expired change-log files")
	} else {
		log.Printf("✓ Pruned %d expired change-log files", pruned)
	}
}
