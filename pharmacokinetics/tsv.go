package pharmacokinetics

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ParseDoseTable reads "date<sep>amount" lines where sep is a tab, a
// semicolon or a comma. Blank lines, "#" comments and a leading header line
// are skipped. Input that is not valid UTF-8 is decoded as ISO-8859-1, which
// is what spreadsheet exports on older systems produce.
//
// Rows are returned as raw entries; validation is left to NormalizeDoses.
func ParseDoseTable(r io.Reader) ([]RawDose, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read dose table: %w", err)
	}

	var reader io.Reader = bytes.NewReader(body)
	if !utf8.Valid(body) {
		reader = charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(body))
	}

	scanner := bufio.NewScanner(reader)
	var rows []RawDose
	lineCount := 0

	for scanner.Scan() {
		lineCount++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := splitRow(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected date and amount, got %q", lineCount, line)
		}

		row := RawDose{
			Date:   strings.TrimSpace(fields[0]),
			Amount: strings.TrimSpace(fields[1]),
		}

		if len(rows) == 0 && isHeader(row) {
			continue
		}

		rows = append(rows, row)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan dose table: %w", err)
	}

	return rows, nil
}

// WriteConcentrationTable writes the date/concentration table with a header.
func WriteConcentrationTable(w io.Writer, samples []ConcentrationSample) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString("date\tconcentration_mg\n"); err != nil {
		return err
	}

	for _, s := range samples {
		line := s.Date.String() + "\t" + strconv.FormatFloat(s.TotalConcentration, 'f', 2, 64) + "\n"
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func splitRow(line string) []string {
	for _, sep := range []string{"\t", ";"} {
		if strings.Contains(line, sep) {
			return strings.Split(line, sep)
		}
	}
	// A decimal comma in the amount ("2024-01-01,2,5") leaves three fields.
	fields := strings.Split(line, ",")
	if len(fields) == 3 {
		return []string{fields[0], fields[1] + "," + fields[2]}
	}
	return fields
}

func isHeader(row RawDose) bool {
	_, ok := ParseDose(row)
	if ok {
		return false
	}
	date := strings.ToLower(row.Date)
	return strings.Contains(date, "date")
}
