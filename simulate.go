package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/giygas/dosecurve-api/pharmacokinetics"
)

// simulate runs the model on a dose table and prints either the daily
// samples or the weekly averages.
func simulate(in io.Reader, out io.Writer, weekly bool, format string) error {
	if format != "json" && format != "tsv" {
		return fmt.Errorf("%w, got %q", errUnknownFormat, format)
	}

	raw, err := pharmacokinetics.ParseDoseTable(in)
	if err != nil {
		return err
	}

	engine, err := pharmacokinetics.NewEngine(1)
	if err != nil {
		return err
	}
	result, _ := engine.Run(raw)

	if weekly {
		if format == "tsv" {
			return writeWeeklyTable(out, result.Weekly)
		}
		return writeJSON(out, result.Weekly)
	}

	if format == "tsv" {
		return pharmacokinetics.WriteConcentrationTable(out, result.Samples)
	}
	return writeJSON(out, result.Samples)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeWeeklyTable(out io.Writer, weeks []pharmacokinetics.WeeklyAverage) error {
	bw := bufio.NewWriter(out)

	if _, err := bw.WriteString("week\tavg_concentration_mg\n"); err != nil {
		return err
	}
	for _, w := range weeks {
		if _, err := bw.WriteString(w.Label() + "\t" + strconv.FormatFloat(w.AvgConcentration, 'f', 2, 64) + "\n"); err != nil {
			return err
		}
	}

	return bw.Flush()
}
