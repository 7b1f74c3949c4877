package params

// These tests verify the rendered markup fragment: deterministic output,
// canonical section ordering, escaping, and the property that cell text can
// be extracted back out of the markup unchanged.

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/net/html"

	"github.com/zedd-project/zedd/cif"
	"github.com/zedd-project/zedd/mapping"
)

// builds a table spanning several sections from two files
func buildTestTable(t *testing.T) *Table {
	first := parseDoc(t, `_diffrn_source.voltage 200
_chemical_formula.sum 'C6 H12 O6'
_computing.data_reduction XDS
`, "crystal1.cif")
	second := parseDoc(t, "_diffrn_source_voltage 300\n", "crystal2.cif")
	return Build([]*cif.Document{first, second}, []ManualValue{
		{DisplayName: "Exposure time [s]", Section: mapping.Experimental, Value: "0.5"},
	})
}

// tests that rendering is deterministic and groups sections in canonical
// order, emitting only non-empty sections
func TestRenderHTMLSections(t *testing.T) {
	assert := assert.New(t)

	table := buildTestTable(t)
	fragment := RenderHTML(table)
	assert.Equal(fragment, RenderHTML(table), "Rendering the same table twice differed.")

	// no General rows, so no General table
	assert.NotContains(fragment, ">General<")
	instrumental := strings.Index(fragment, ">Instrumental<")
	sample := strings.Index(fragment, ">Sample<")
	experimental := strings.Index(fragment, ">Experimental<")
	software := strings.Index(fragment, ">Software<")
	assert.True(instrumental >= 0 && sample > instrumental && experimental > sample && software > experimental,
		"Sections are out of canonical order.")

	// each section table repeats the full column set
	assert.Equal(4, strings.Count(fragment, "<table"))
	assert.Equal(4, strings.Count(fragment, ">Manual</th>"))
	assert.Equal(4, strings.Count(fragment, ">crystal1</th>"))
	assert.Equal(4, strings.Count(fragment, ">crystal2</th>"))
}

// tests that the renderer owns all escaping of cell values
func TestRenderHTMLEscapesValues(t *testing.T) {
	assert := assert.New(t)

	table := NewTable()
	table.SetManual("Compound name", mapping.Sample, `<oxide> & "salt"`)
	fragment := RenderHTML(table)
	assert.Contains(fragment, "&lt;oxide&gt; &amp; &#34;salt&#34;")
	assert.NotContains(fragment, "<oxide>")
}

// tests that embedded newlines render as explicit breaks
func TestRenderHTMLMultilineValues(t *testing.T) {
	assert := assert.New(t)

	table := NewTable()
	table.SetManual("Crystal habit", mapping.Sample, "thin\nplates")
	fragment := RenderHTML(table)
	assert.Contains(fragment, "thin<br>plates")
}

// tests that an empty table renders to an empty fragment
func TestRenderHTMLEmptyTable(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("", RenderHTML(NewTable()))
}

// extracts cell text from markup, mapping <br> back to newlines
func cellText(node *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.Data == "br" {
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return b.String()
}

// collects the text of every <td> in document order
func extractCells(t *testing.T, fragment string) []string {
	doc, err := html.Parse(strings.NewReader(fragment))
	assert.Nil(t, err)

	var cells []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "td" {
			cells = append(cells, cellText(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return cells
}

// round-trip property: re-extracting cell text from the rendered markup
// yields the original trimmed values
func TestRenderHTMLRoundTrip(t *testing.T) {
	assert := assert.New(t)

	table := NewTable()
	table.SetManual("Compound name", mapping.Sample, `5 < 7 & "quoted"`)
	table.SetManual("Crystal habit", mapping.Sample, "thin\nplates")
	table.AddDocument(parseDoc(t, "_diffrn_source.voltage 200\n", "crystal.cif"))
	table.Prune()

	cells := extractCells(t, RenderHTML(table))

	// one label + one value cell per column for each of the three rows
	assert.Len(cells, 3*(1+len(table.Columns())))
	assert.Contains(cells, `5 < 7 & "quoted"`)
	assert.Contains(cells, "thin\nplates")
	assert.Contains(cells, "200")
}
