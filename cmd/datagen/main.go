package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sentinel/adapters/excel"
	"sentinel/internal/testkit"
)

func main() {
	out := flag.String("out", "manufacturing_sample.xlsx", "output file path")
	rows := flag.Int("rows", 1000, "number of hourly records")
	format := flag.String("format", "", "output format: xlsx or csv (default inferred from -out)")
	sheet := flag.String("sheet", excel.DefaultSheet, "worksheet name for xlsx output")
	seed := flag.Uint64("seed", 42, "RNG seed (deterministic)")
	start := flag.String("start", "2024-01-01", "first timestamp (YYYY-MM-DD)")
	flag.Parse()

	if *rows <= 0 {
		fmt.Fprintln(os.Stderr, "rows must be > 0")
		os.Exit(2)
	}

	startDate, err := time.ParseInLocation("2006-01-02", *start, time.UTC)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid -start (expected YYYY-MM-DD):", err)
		os.Exit(2)
	}

	path := *out
	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "":
	case "csv":
		path = strings.TrimSuffix(path, filepath.Ext(path)) + ".csv"
	case "xlsx":
		path = strings.TrimSuffix(path, filepath.Ext(path)) + ".xlsx"
	default:
		fmt.Fprintln(os.Stderr, "unsupported format:", *format)
		os.Exit(2)
	}

	cfg := testkit.DefaultManufacturingConfig()
	cfg.Rows = *rows
	cfg.Seed = *seed
	cfg.Start = startDate

	t, err := testkit.GenerateManufacturing(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error generating dataset:", err)
		os.Exit(1)
	}

	if err := excel.WriteFile(path, t, *sheet); err != nil {
		fmt.Fprintln(os.Stderr, "error writing dataset:", err)
		os.Exit(1)
	}

	fmt.Printf("Sample data written: %s\n", path)
	fmt.Printf("Columns: %d | Rows: %d\n", t.Width(), t.Len())
}
