package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders static rows with aligned columns.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	// Empty is shown instead of the table when there are no rows.
	Empty string
}

// NewTable creates a Table with the given title and headers.
func NewTable(title string, headers ...string) *Table {
	return &Table{
		Title:   title,
		Headers: headers,
		Rows:    make([][]string, 0),
	}
}

// AddRow appends a row. Missing cells render empty; extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// View renders the table using the provided styles.
func (t *Table) View(styles Styles) string {
	var sb strings.Builder

	if t.Title != "" {
		sb.WriteString(styles.Title.Render(t.Title))
		sb.WriteString("\n")
	}
	if len(t.Rows) == 0 {
		if t.Empty != "" {
			sb.WriteString(styles.Muted.Render(t.Empty))
			sb.WriteString("\n")
		}
		return sb.String()
	}

	colWidths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		colWidths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(colWidths) {
				if w := lipgloss.Width(cell); w > colWidths[i] {
					colWidths[i] = w
				}
			}
		}
	}
	// lipgloss widths include padding
	for i := range colWidths {
		colWidths[i] += 2
	}

	headerStyle := styles.Bold.Padding(0, 1)
	rowStyle := styles.Body.Padding(0, 1)
	sep := styles.Muted.Render("|")

	for i, h := range t.Headers {
		sb.WriteString(headerStyle.Width(colWidths[i]).Render(h))
		if i < len(t.Headers)-1 {
			sb.WriteString(sep)
		}
	}
	sb.WriteString("\n")

	totalWidth := len(t.Headers) - 1
	for _, w := range colWidths {
		totalWidth += w
	}
	sb.WriteString(styles.Muted.Render(strings.Repeat("-", totalWidth)))
	sb.WriteString("\n")

	for _, row := range t.Rows {
		for i := range colWidths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			sb.WriteString(rowStyle.Width(colWidths[i]).Render(cell))
			if i < len(colWidths)-1 {
				sb.WriteString(sep)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
