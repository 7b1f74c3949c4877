// The mapping package maintains the table that associates CIF data-item
// names with the display parameters shown in a deposition's parameter table.
// The table is a process-wide singleton: Init loads the bundled table at
// startup, MergeOverrides layers a user-supplied file on top of it, and the
// table is read-only thereafter (via Resolve).
package mapping

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// one of the five canonical parameter-table sections
type Section string

const (
	General      Section = "General"
	Instrumental Section = "Instrumental"
	Sample       Section = "Sample"
	Experimental Section = "Experimental"
	Software     Section = "Software"
)

// the canonical section ordering used for parameter tables and rendered markup
var SectionOrder = []Section{General, Instrumental, Sample, Experimental, Software}

// returns the position of the given section in the canonical ordering
// (sections are compared case-sensitively)
func (s Section) Index() int {
	for i, section := range SectionOrder {
		if s == section {
			return i
		}
	}
	return len(SectionOrder)
}

// returns true if the section is one of the five canonical sections
func (s Section) IsValid() bool {
	return s.Index() < len(SectionOrder)
}

// an association between a CIF data-item name and a display parameter
type Entry struct {
	// the CIF data-item name, in either legacy underscore or modern dot
	// notation (the two notations for the same quantity are distinct keys)
	CifName string
	// the name under which the parameter is displayed
	DisplayName string
	// the section the parameter belongs to
	Section Section
}

// the bundled mapping table, shipped with the program
//
//go:embed cif_mappings.yaml
var bundledMappings []byte

// the singleton table, written only by Init and MergeOverrides
var entries map[string]Entry

// Init loads the bundled mapping table. It must be called before Resolve and
// may be called again to reset the table to its bundled state (user overrides
// are forgotten).
func Init() error {
	loaded, err := parseMappings(bundledMappings, "(bundled)")
	if err != nil {
		return err
	}
	entries = loaded
	return nil
}

// MergeOverrides layers the mapping file at the given path over the table.
// User entries replace bundled entries with the same CIF name and are
// otherwise additive. A missing file is not an error; a present but malformed
// file is reported as a ConfigError and leaves the table untouched.
func MergeOverrides(path string) error {
	if entries == nil {
		if err := Init(); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &ConfigError{Path: path, Message: err.Error()}
	}
	overrides, err := parseMappings(data, path)
	if err != nil {
		return err
	}
	for name, entry := range overrides {
		entries[name] = entry
	}
	return nil
}

// Resolve returns the entry for the given CIF data-item name, or false if the
// name is not in the table. Names are matched exactly and case-sensitively;
// callers that receive false should skip the data item.
func Resolve(cifName string) (Entry, bool) {
	entry, found := entries[cifName]
	return entry, found
}

// Size returns the number of entries currently in the table.
func Size() int {
	return len(entries)
}

// A mapping file is a map from CIF data-item names to [display name, section]
// pairs, in YAML or JSON form:
//
//	_diffrn_source.voltage: ["Accelerating voltage [kV]", "Instrumental"]
func parseMappings(data []byte, path string) (map[string]Entry, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Path: path, Message: err.Error()}
	}
	parsed := make(map[string]Entry, len(raw))
	for cifName, pair := range raw {
		if len(pair) != 2 || pair[0] == "" || pair[1] == "" {
			return nil, &ConfigError{
				Path:    path,
				Message: fmt.Sprintf("entry for '%s' must be a [display name, section] pair", cifName),
			}
		}
		section := Section(pair[1])
		if !section.IsValid() {
			return nil, &ConfigError{
				Path:    path,
				Message: fmt.Sprintf("entry for '%s' has unknown section '%s'", cifName, pair[1]),
			}
		}
		parsed[cifName] = Entry{
			CifName:     cifName,
			DisplayName: pair[0],
			Section:     section,
		}
	}
	return parsed, nil
}
