package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
	headerColor  = color.New(color.FgWhite, color.Bold)
)

func printSuccess(format string, a ...any) {
	successColor.Printf("✓ "+format+"\n", a...)
}

func printError(format string, a ...any) {
	errorColor.Fprintf(os.Stderr, "✗ "+format+"\n", a...)
}

func printWarn(format string, a ...any) {
	warnColor.Printf("⚠ "+format+"\n", a...)
}

type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// render writes aligned columns; cells beyond the header count are dropped.
func (t *table) render(w io.Writer) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range t.headers {
		headerColor.Fprintf(w, "%-*s  ", widths[i], h)
	}
	fmt.Fprintln(w)

	for i := range t.headers {
		fmt.Fprint(w, strings.Repeat("-", widths[i])+"  ")
	}
	fmt.Fprintln(w)

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(w, "%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(w)
	}
}
