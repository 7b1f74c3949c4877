// The params package aggregates parameters extracted from CIF files into a
// single table with one column per imported file (plus an optional
// manually-entered column), and renders that table as the HTML fragment
// embedded in a deposition's description.
package params

import (
	"fmt"

	"github.com/zedd-project/zedd/cif"
	"github.com/zedd-project/zedd/mapping"
)

// identifies a column in a parameter table
type ColumnID string

// the column holding manually-entered values
const ManualColumnID ColumnID = "manual"

// a column of a parameter table
type Column struct {
	ID    ColumnID
	Label string // shown in rendered table headers
}

// one display parameter and its per-column values
type Row struct {
	DisplayName string
	Section     mapping.Section
	Values      map[ColumnID]string
}

// Table holds display parameters aggregated across any number of imported
// CIF files. Rows are kept grouped by section in the canonical section order
// and, within a section, in the order the parameters were first seen. Every
// imported file contributes its own column; columns are never merged, even
// when two files report identical values, and re-importing a file appends a
// fresh column rather than updating an earlier one.
type Table struct {
	columns []Column
	rows    []*Row
	nextCif int // sequence number for CIF-derived column ids
}

func NewTable() *Table {
	return &Table{}
}

// Columns returns the table's columns in order: the manual column first, if
// present, then one column per imported file in import order.
func (t *Table) Columns() []Column {
	return t.columns
}

// Rows returns the table's rows in section-then-first-seen order.
func (t *Table) Rows() []*Row {
	return t.rows
}

// SetManual records a manually-entered parameter value, creating the manual
// column and the parameter's row as needed.
func (t *Table) SetManual(displayName string, section mapping.Section, value string) {
	if _, found := t.findColumn(ManualColumnID); !found {
		// the manual column always leads
		t.columns = append([]Column{{ID: ManualColumnID, Label: "Manual"}}, t.columns...)
	}
	t.upsert(displayName, section).Values[ManualColumnID] = value
}

// AddDocument appends a column for the given parsed CIF document, resolving
// each of its data items through the mapping table. Unmapped items are
// dropped; that is a documented omission, not an error. The new column's ID
// is returned.
func (t *Table) AddDocument(doc *cif.Document) ColumnID {
	t.nextCif++
	id := ColumnID(fmt.Sprintf("cif-%d", t.nextCif))
	t.columns = append(t.columns, Column{ID: id, Label: doc.Name})

	for _, cifName := range doc.Order {
		entry, found := mapping.Resolve(cifName)
		if !found {
			continue
		}
		t.upsert(entry.DisplayName, entry.Section).Values[id] = doc.Items[cifName]
	}

	// CIF authors come from the audit_author loop rather than a single item
	if authors := authorList(doc); authors != "" {
		t.upsert("CIF author(s)", mapping.General).Values[id] = authors
	}
	return id
}

// Prune drops rows whose values are empty in every column. Call it after all
// files have been processed.
func (t *Table) Prune() {
	kept := t.rows[:0]
	for _, row := range t.rows {
		for _, value := range row.Values {
			if value != "" {
				kept = append(kept, row)
				break
			}
		}
	}
	t.rows = kept
}

// a manually-entered parameter, supplied in display order
type ManualValue struct {
	DisplayName string
	Section     mapping.Section
	Value       string
}

// Build aggregates the given parsed documents (in user-selection order) into
// a pruned table. Manual values, if any, occupy the leading manual column.
func Build(docs []*cif.Document, manual []ManualValue) *Table {
	t := NewTable()
	for _, mv := range manual {
		t.SetManual(mv.DisplayName, mv.Section, mv.Value)
	}
	for _, doc := range docs {
		t.AddDocument(doc)
	}
	t.Prune()
	return t
}

// returns the row for the given display parameter, creating it at the end of
// its section group on first sight
func (t *Table) upsert(displayName string, section mapping.Section) *Row {
	for _, row := range t.rows {
		if row.DisplayName == displayName && row.Section == section {
			return row
		}
	}
	row := &Row{
		DisplayName: displayName,
		Section:     section,
		Values:      make(map[ColumnID]string),
	}
	// insert after the last row whose section sorts at or before this one,
	// preserving first-seen order within the section
	pos := len(t.rows)
	for pos > 0 && t.rows[pos-1].Section.Index() > section.Index() {
		pos--
	}
	t.rows = append(t.rows, nil)
	copy(t.rows[pos+1:], t.rows[pos:])
	t.rows[pos] = row
	return row
}

func (t *Table) findColumn(id ColumnID) (Column, bool) {
	for _, col := range t.columns {
		if col.ID == id {
			return col, true
		}
	}
	return Column{}, false
}

// joins the names found in a document's audit_author loop, checking both
// notations for the name tag
func authorList(doc *cif.Document) string {
	var names string
	for _, row := range doc.Loops["audit_author"] {
		name := row["_audit_author.name"]
		if name == "" {
			name = row["_audit_author_name"]
		}
		if name == "" {
			continue
		}
		if names != "" {
			names += "; "
		}
		names += name
	}
	return names
}
