package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/giygas/dosecurve-api/pharmacokinetics"
)

const doseTable = "date\tamount\n2024-01-01\t5\n2024-01-08\t5\n"

func writeDoseTable(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "doses.tsv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSimulateCommandTSV(t *testing.T) {
	path := writeDoseTable(t, doseTable)

	var out bytes.Buffer
	if err := run(context.Background(), []string{"dosecurve", "simulate", "--file", path, "--format", "tsv"}, &out); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if lines[0] != "date\tconcentration_mg" {
		t.Errorf("Expected header line, got %q", lines[0])
	}
	if len(lines) != 37 {
		t.Errorf("Expected 36 samples plus header, got %d lines", len(lines))
	}
	if lines[9] != "2024-01-09\t5.52" {
		t.Errorf("Expected 2024-01-09\\t5.52, got %q", lines[9])
	}
}

func TestSimulateCommandWeeklyJSON(t *testing.T) {
	path := writeDoseTable(t, doseTable)

	var out bytes.Buffer
	if err := run(context.Background(), []string{"dosecurve", "simulate", "-f", path, "--weekly"}, &out); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var weeks []pharmacokinetics.WeeklyAverage
	if err := json.Unmarshal(out.Bytes(), &weeks); err != nil {
		t.Fatalf("Expected JSON output, got %v: %s", err, out.String())
	}
	if len(weeks) != 6 {
		t.Errorf("Expected 6 weeks, got %d", len(weeks))
	}
	if weeks[0].WeekIndex != 1 {
		t.Errorf("Expected first week index 1, got %d", weeks[0].WeekIndex)
	}
}

func TestSimulateWeeklyTable(t *testing.T) {
	var out bytes.Buffer
	if err := simulate(strings.NewReader(doseTable), &out, true, "tsv"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if lines[0] != "week\tavg_concentration_mg" {
		t.Errorf("Expected weekly header, got %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "Week 1\t") {
		t.Errorf("Expected first row for Week 1, got %q", lines[1])
	}
}

func TestSimulateEmptyTable(t *testing.T) {
	var out bytes.Buffer
	if err := simulate(strings.NewReader("# nothing yet\n"), &out, false, "json"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("Expected empty JSON array, got %q", out.String())
	}
}

func TestSimulateUnknownFormat(t *testing.T) {
	err := simulate(strings.NewReader(doseTable), &bytes.Buffer{}, false, "xml")
	if !errors.Is(err, errUnknownFormat) {
		t.Errorf("Expected errUnknownFormat, got %v", err)
	}
}

func TestSimulateMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.tsv")

	err := run(context.Background(), []string{"dosecurve", "simulate", "--file", path}, &bytes.Buffer{})
	if err == nil {
		t.Error("Expected an error for a missing dose table")
	}
}
