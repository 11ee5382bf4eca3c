package pharmacokinetics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestParseDoseTable(t *testing.T) {
	input := "# exported doses\n" +
		"date\tamount\n" +
		"2024-01-01\t10\n" +
		"\n" +
		"2024-01-08;2,5\n" +
		"2024-01-15,7,5\n" +
		"2024-01-22, 5 \n"

	rows, err := ParseDoseTable(strings.NewReader(input))
	gt.NoError(t, err)
	gt.Equal(t, rows, []RawDose{
		{Date: "2024-01-01", Amount: "10"},
		{Date: "2024-01-08", Amount: "2,5"},
		{Date: "2024-01-15", Amount: "7,5"},
		{Date: "2024-01-22", Amount: "5"},
	})

	doses := NormalizeDoses(rows)
	gt.Equal(t, len(doses), 4)
	gt.Equal(t, doses[1].AmountMg, 2.5)
}

func TestParseDoseTableLatin1(t *testing.T) {
	// "Date;Quantité" encoded as ISO-8859-1
	input := append([]byte("Date;Quantit"), 0xE9)
	input = append(input, []byte("\n2024-03-04;5\n")...)

	rows, err := ParseDoseTable(bytes.NewReader(input))
	gt.NoError(t, err)
	gt.Equal(t, rows, []RawDose{{Date: "2024-03-04", Amount: "5"}})
}

func TestParseDoseTableKeepsInvalidRows(t *testing.T) {
	rows, err := ParseDoseTable(strings.NewReader("2024-01-01\tabc\nnot-a-date\t5\n"))
	gt.NoError(t, err)
	gt.Equal(t, len(rows), 2)
	gt.Equal(t, len(NormalizeDoses(rows)), 0)
}

func TestParseDoseTableMissingAmount(t *testing.T) {
	_, err := ParseDoseTable(strings.NewReader("2024-01-01\t10\n2024-01-08\n"))
	gt.Error(t, err)
	gt.True(t, strings.Contains(err.Error(), "line 2"))
}

func TestWriteConcentrationTable(t *testing.T) {
	samples := Simulate([]DoseEvent{{Date: date("2024-01-01"), AmountMg: 10}})

	var buf bytes.Buffer
	gt.NoError(t, WriteConcentrationTable(&buf, samples))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	gt.Equal(t, len(lines), 30)
	gt.Equal(t, lines[0], "date\tconcentration_mg")
	gt.Equal(t, lines[1], "2024-01-01\t0.00")
	gt.Equal(t, lines[2], "2024-01-02\t8.00")
}

func TestWriteConcentrationTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	gt.NoError(t, WriteConcentrationTable(&buf, nil))
	gt.Equal(t, buf.String(), "date\tconcentration_mg\n")
}
