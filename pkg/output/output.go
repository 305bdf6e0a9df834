// Package output renders command results for humans (colored messages and
// tables) or machines (indented JSON).
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
)

// Formats accepted by --output.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

var Formats = []string{FormatTable, FormatJSON}

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	headerColor  = color.New(color.FgWhite, color.Bold)
)

var (
	stdout io.Writer = color.Output
	stderr io.Writer = color.Error
)

// SetOutput redirects regular output to out and errors to errOut.
func SetOutput(out, errOut io.Writer) {
	stdout = out
	stderr = errOut
}

// ValidFormat reports whether f is a supported output format.
func ValidFormat(f string) bool {
	return slices.Contains(Formats, f)
}

func Success(format string, a ...interface{}) {
	successColor.Fprintf(stdout, "✓ "+format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	errorColor.Fprintf(stderr, "✗ "+format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	infoColor.Fprintf(stdout, format+"\n", a...)
}

func Warn(format string, a ...interface{}) {
	warnColor.Fprintf(stdout, "⚠ "+format+"\n", a...)
}

func JSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers ...string) *Table {
	return &Table{
		headers: headers,
		rows:    [][]string{},
	}
}

// AddRow appends a row. Missing cells render empty, extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) Render() {
	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = len(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	for i, header := range t.headers {
		headerColor.Fprintf(stdout, "%-*s  ", widths[i], header)
	}
	fmt.Fprintln(stdout)

	for i := range t.headers {
		fmt.Fprint(stdout, strings.Repeat("-", widths[i])+"  ")
	}
	fmt.Fprintln(stdout)

	for _, row := range t.rows {
		for i, cell := range row {
			fmt.Fprintf(stdout, "%-*s  ", widths[i], cell)
		}
		fmt.Fprintln(stdout)
	}
}
