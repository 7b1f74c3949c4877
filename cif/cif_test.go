package cif

// These tests verify the permissive CIF parser against both tag notations,
// quoting styles, multi-line text blocks, and loop_ tables.

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// a small CIF fragment exercising most of the inline value syntax
const simpleCif = `# comment line
data_lysozyme
_cell.length_a   79.2
_cell_length_b 79.2
_diffrn_source.voltage 200
_chemical.name_common 'hen egg-white lysozyme'
_diffrn_radiation.type "electron"
_exptl_crystal.colour ?
_exptl_crystal.description .
`

// tests basic tag/value extraction in both notations
func TestParseInlineValues(t *testing.T) {
	assert := assert.New(t)

	doc, err := Parse(simpleCif, "lysozyme.cif")
	assert.Nil(err)
	assert.Equal("lysozyme", doc.Name)
	assert.Equal("lysozyme", doc.BlockName)
	assert.Equal("79.2", doc.Item("_cell.length_a"))
	assert.Equal("79.2", doc.Item("_cell_length_b"))
	assert.Equal("200", doc.Item("_diffrn_source.voltage"))
	assert.Equal("hen egg-white lysozyme", doc.Item("_chemical.name_common"))
	assert.Equal("electron", doc.Item("_diffrn_radiation.type"))
}

// tests that the CIF unknown/inapplicable placeholders come back empty
func TestParsePlaceholderValues(t *testing.T) {
	assert := assert.New(t)

	doc, err := Parse(simpleCif, "lysozyme.cif")
	assert.Nil(err)
	assert.Equal("", doc.Item("_exptl_crystal.colour"))
	assert.Equal("", doc.Item("_exptl_crystal.description"))
}

// tests a value on the line following its tag
func TestParseValueOnNextLine(t *testing.T) {
	assert := assert.New(t)

	doc, err := Parse("_chemical_formula_sum\n'C6 H12 O6'\n", "sugar.cif")
	assert.Nil(err)
	assert.Equal("C6 H12 O6", doc.Item("_chemical_formula_sum"))
}

// tests a semicolon-delimited multi-line text block
func TestParseMultilineBlock(t *testing.T) {
	assert := assert.New(t)

	content := "_exptl.special_details\n;\nCrystals grown at 293 K\nin batch mode.\n;\n_cell.volume 1234\n"
	doc, err := Parse(content, "details.cif")
	assert.Nil(err)
	assert.Equal("Crystals grown at 293 K\nin batch mode.", doc.Item("_exptl.special_details"))
	assert.Equal("1234", doc.Item("_cell.volume"))
}

// tests that an unterminated multi-line block fails with a ParseError
// carrying the file path and a line indicator
func TestParseUnterminatedBlock(t *testing.T) {
	assert := assert.New(t)

	content := "_cell.volume 1234\n_exptl.special_details\n;\nno terminator here"
	_, err := Parse(content, "broken.cif")
	assert.NotNil(err, "Unterminated text block didn't trigger an error.")
	var parseErr *ParseError
	assert.ErrorAs(err, &parseErr)
	assert.Equal("broken.cif", parseErr.Path)
	assert.Equal(3, parseErr.Line)
}

// tests that unrecognized lines are skipped without complaint
func TestParseIgnoresUnknownContent(t *testing.T) {
	assert := assert.New(t)

	content := "stray text that is not CIF\n_cell.length_a 5.63\nmore stray text\n"
	doc, err := Parse(content, "messy.cif")
	assert.Nil(err)
	assert.Equal("5.63", doc.Item("_cell.length_a"))
	assert.Len(doc.Items, 1)
}

// tests loop_ parsing with quoted values and row reassembly across lines
func TestParseLoop(t *testing.T) {
	assert := assert.New(t)

	content := `loop_
_audit_author.name
_audit_author.address
'Carberry, Josiah' 'Brown University'
'Doe, Jane'
'Somewhere else'
_cell.length_a 5.63
`
	doc, err := Parse(content, "authors.cif")
	assert.Nil(err)
	rows := doc.Loops["audit_author"]
	assert.Len(rows, 2)
	assert.Equal("Carberry, Josiah", rows[0]["_audit_author.name"])
	assert.Equal("Brown University", rows[0]["_audit_author.address"])
	assert.Equal("Doe, Jane", rows[1]["_audit_author.name"])
	// the item after the loop is still picked up
	assert.Equal("5.63", doc.Item("_cell.length_a"))
}

// tests that legacy loop tags derive the same category as modern ones
func TestParseLoopLegacyCategory(t *testing.T) {
	assert := assert.New(t)

	content := "loop_\n_audit_author_name\nSmith\n"
	doc, err := Parse(content, "legacy.cif")
	assert.Nil(err)
	assert.Len(doc.Loops["audit_author"], 1)
}

// tests FirstItem across the two notations
func TestFirstItem(t *testing.T) {
	assert := assert.New(t)

	doc, err := Parse("_cell_length_a 5.63\n", "cell.cif")
	assert.Nil(err)
	assert.Equal("5.63", doc.FirstItem("_cell.length_a", "_cell_length_a"))
	assert.Equal("", doc.FirstItem("_cell.length_b", "_cell_length_b"))
}

// tests reading a document from disk
func TestParseFile(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "sample.cif")
	err := os.WriteFile(path, []byte(simpleCif), 0644)
	assert.Nil(err)

	doc, err := ParseFile(path)
	assert.Nil(err)
	assert.Equal("sample", doc.Name)
	assert.Equal(path, doc.Path)
	assert.Equal("200", doc.Item("_diffrn_source.voltage"))

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.cif"))
	assert.NotNil(err)
}
