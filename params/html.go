package params

import (
	"fmt"
	"html"
	"strings"

	"github.com/zedd-project/zedd/mapping"
)

// styling carried over into the deposition description; Zenodo renders the
// fragment as-is
const (
	cellStyle    = "padding: 8px;"
	headerStyle  = "padding: 8px; background-color: #f0f0f0;"
	captionStyle = "padding: 8px; font-weight: bold; background-color: #e0e0e0; text-align: left;"
	tableStyle   = "border-collapse: collapse; width: 100%;"
)

// RenderHTML serializes the table as the markup fragment embedded in a
// deposition's description: one <table> per non-empty section, sections in
// canonical order, rows in table order, a leading parameter-name column and
// one column per table column. All cell text is escaped here; downstream
// consumers embed the fragment verbatim. Identical tables always yield
// byte-identical markup.
func RenderHTML(t *Table) string {
	rows := t.Rows()
	if len(rows) == 0 {
		return ""
	}

	var b strings.Builder
	for _, section := range mapping.SectionOrder {
		sectionRows := rowsInSection(rows, section)
		if len(sectionRows) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		renderSection(&b, section, sectionRows, t.Columns())
	}
	return b.String()
}

func renderSection(b *strings.Builder, section mapping.Section, rows []*Row, columns []Column) {
	fmt.Fprintf(b, "<table border=\"1\" style=\"%s\">\n", tableStyle)
	fmt.Fprintf(b, "  <caption style=\"%s\"><strong>%s</strong></caption>\n",
		captionStyle, html.EscapeString(string(section)))

	b.WriteString("  <thead>\n    <tr>\n")
	fmt.Fprintf(b, "      <th style=\"%s\">Parameter</th>\n", headerStyle)
	for _, col := range columns {
		fmt.Fprintf(b, "      <th style=\"%s\">%s</th>\n", headerStyle, html.EscapeString(col.Label))
	}
	b.WriteString("    </tr>\n  </thead>\n")

	b.WriteString("  <tbody>\n")
	for _, row := range rows {
		b.WriteString("    <tr>\n")
		fmt.Fprintf(b, "      <td style=\"%s\">%s</td>\n", cellStyle, html.EscapeString(row.DisplayName))
		for _, col := range columns {
			fmt.Fprintf(b, "      <td style=\"%s\">%s</td>\n", cellStyle, renderCell(row.Values[col.ID]))
		}
		b.WriteString("    </tr>\n")
	}
	b.WriteString("  </tbody>\n</table>\n")
}

// escapes a cell value, turning embedded newlines into explicit breaks
func renderCell(value string) string {
	escaped := html.EscapeString(value)
	return strings.ReplaceAll(escaped, "\n", "<br>")
}

func rowsInSection(rows []*Row, section mapping.Section) []*Row {
	var matched []*Row
	for _, row := range rows {
		if row.Section == section {
			matched = append(matched, row)
		}
	}
	return matched
}
