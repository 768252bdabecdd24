package grant

import (
	"context"

	"github.com/jedib0t/go-pretty/table"
)

// DumpTable runs the query and renders its results as an ASCII table,
// columns in ModelInfo field order. Meant for debugging and REPL-style
// inspection, the row-rendering complement to Print's SQL/args dump.
func (m *Model[T]) DumpTable(ctx context.Context) (string, error) {
	results, err := m.Get(ctx)
	if err != nil {
		return "", err
	}

	t := table.NewWriter()

	header := make(table.Row, 0, len(m.modelInfo.Fields))
	for _, field := range m.modelInfo.Fields {
		header = append(header, field.Column)
	}
	t.AppendHeader(header)

	for _, entity := range results {
		row := make(table.Row, 0, len(m.modelInfo.Fields))
		attrs := m.attributesOf(entity)
		for _, field := range m.modelInfo.Fields {
			row = append(row, attrs[field.Column])
		}
		t.AppendRow(row)
	}

	return t.Render(), nil
}
