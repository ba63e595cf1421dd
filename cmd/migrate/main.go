package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"sentinel/adapters/store"
	"sentinel/internal/report"
)

func main() {
	if len(os.Args) < 4 {
		log.Fatal("Usage: migrate <postgres|sqlite> <database_url> <reports_dir>")
	}

	driver, databaseURL, reportsDir := os.Args[1], os.Args[2], os.Args[3]
	log.Printf("Starting report backfill from %s to %s database", reportsDir, driver)

	ctx := context.Background()
	archive, err := store.OpenReports(ctx, driver, databaseURL, nil)
	if err != nil {
		log.Fatalf("Failed to open report archive: %v", err)
	}
	defer archive.Close()

	migrated, skipped, err := backfill(ctx, archive, reportsDir)
	if err != nil {
		log.Fatalf("Backfill failed: %v", err)
	}
	log.Printf("Backfill complete: %d migrated, %d skipped", migrated, skipped)
}

// backfill archives every report JSON file under dir. Files that do not
// decode, or whose report is already archived, are skipped.
func backfill(ctx context.Context, archive report.Archive, dir string) (migrated, skipped int, err error) {
	files, err := findReportFiles(dir)
	if err != nil {
		return 0, 0, err
	}
	log.Printf("Found %d report files to migrate", len(files))

	for _, file := range files {
		rep, err := loadReportFromFile(file)
		if err != nil {
			log.Printf("Failed to load report from %s: %v", file, err)
			skipped++
			continue
		}
		if err := archive.SaveReport(ctx, rep); err != nil {
			log.Printf("Failed to save report %s: %v", rep.ID, err)
			skipped++
			continue
		}
		migrated++
		log.Printf("Migrated report %s from %s", rep.ID, filepath.Base(file))
	}
	return migrated, skipped, nil
}

func findReportFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".json") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// loadReportFromFile decodes one exported report. Reports without an ID get
// one derived from the file path so reruns stay idempotent, and a missing
// generation time falls back to the file's modification time.
func loadReportFromFile(path string) (*report.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rep report.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, err
	}
	if rep.ID == "" {
		abs, _ := filepath.Abs(path)
		rep.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(abs)).String()
	}
	if rep.GeneratedAt.IsZero() {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		rep.GeneratedAt = info.ModTime().UTC()
	}
	return &rep, nil
}
