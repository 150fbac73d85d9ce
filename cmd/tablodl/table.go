package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// renderTable prints rows in the rounded box style used across all listing
// commands.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	writer := table.NewWriter()
	writer.SetOutputMirror(w)
	writer.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, col := range headers {
		header[i] = col
	}

	writer.AppendHeader(header)

	for _, row := range rows {
		cells := make(table.Row, len(row))
		for i, cell := range row {
			cells[i] = cell
		}

		writer.AppendRow(cells)
	}

	writer.Render()
}
