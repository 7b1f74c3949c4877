// The cif package parses Crystallographic Information File (CIF) text into
// flat data-item maps for the parameter-table pipeline. It recognizes both
// the legacy underscore notation (_cell_length_a) and the modern dot
// notation (_cell.length_a), inline quoted values, semicolon-delimited
// multi-line text blocks, and loop_ tables. The format is treated
// permissively: unrecognized lines are skipped, and parsing fails only on a
// structurally malformed multi-line block.
package cif

import (
	"os"
	"path/filepath"
	"strings"
)

// the parsed contents of a single CIF file
type Document struct {
	// the name of the file the document was parsed from (without extension),
	// used to label the document's column in aggregated parameter tables
	Name string
	// the path the document was read from, if any
	Path string
	// the name following the document's data_ heading, if any
	BlockName string
	// data-item values keyed by data-item name, exactly as written
	// (quotes stripped, whitespace trimmed, placeholders blanked)
	Items map[string]string
	// data-item names in the order they appear in the file
	Order []string
	// loop_ tables keyed by category, each a sequence of rows mapping
	// data-item names to values
	Loops map[string][]map[string]string
}

// returns the value of the named data item, or "" if the item is absent
func (d *Document) Item(name string) string {
	return d.Items[name]
}

// records a data item, tracking first-seen order; a repeated tag overwrites
// its value but keeps its original position
func (d *Document) setItem(name, value string) {
	if _, seen := d.Items[name]; !seen {
		d.Order = append(d.Order, name)
	}
	d.Items[name] = value
}

// returns the value of the first of the named data items that is present and
// non-empty, or "" if none is (convenient for checking both CIF notations)
func (d *Document) FirstItem(names ...string) string {
	for _, name := range names {
		if value := d.Items[name]; value != "" {
			return value
		}
	}
	return ""
}

// ParseFile reads and parses the CIF file at the given path.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(string(data), path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Parse parses CIF text. The path is used only for labeling the document and
// for error reporting.
func Parse(content string, path string) (*Document, error) {
	doc := &Document{
		Name:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:  path,
		Items: make(map[string]string),
		Loops: make(map[string][]map[string]string),
	}

	lines := splitLines(content)
	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])

		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			i++

		case strings.HasPrefix(strings.ToLower(line), "data_"):
			doc.BlockName = strings.TrimSpace(line[len("data_"):])
			i++

		case strings.EqualFold(line, "loop_"):
			var err error
			i, err = parseLoop(lines, i+1, doc, path)
			if err != nil {
				return nil, err
			}

		case strings.HasPrefix(line, "_"):
			var err error
			i, err = parseDataItem(lines, i, doc, path)
			if err != nil {
				return nil, err
			}

		default:
			// the format is permissive: anything unrecognized is skipped
			i++
		}
	}
	return doc, nil
}

// parses a data item starting at line i, returning the index of the first
// unconsumed line
func parseDataItem(lines []string, i int, doc *Document, path string) (int, error) {
	line := strings.TrimSpace(lines[i])
	tag, rest, hasValue := splitTagLine(line)

	if hasValue {
		doc.setItem(tag, cleanValue(rest))
		return i + 1, nil
	}

	// tag with no inline value: the value is either a multi-line block or on
	// the following line
	i++
	if i >= len(lines) {
		doc.setItem(tag, "")
		return i, nil
	}
	next := strings.TrimSpace(lines[i])
	if strings.HasPrefix(next, ";") {
		value, end, err := parseTextBlock(lines, i, path)
		if err != nil {
			return i, err
		}
		doc.setItem(tag, value)
		return end, nil
	}
	doc.setItem(tag, cleanValue(next))
	return i + 1, nil
}

// parses a semicolon-delimited multi-line text block whose opening ';' is on
// line start; returns the block text and the index of the first line past the
// terminator
func parseTextBlock(lines []string, start int, path string) (string, int, error) {
	// text may follow the opening semicolon on the same line
	first := strings.TrimSpace(lines[start])[1:]
	var block []string
	if first != "" {
		block = append(block, first)
	}
	for i := start + 1; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), ";") {
			return strings.TrimSpace(strings.Join(block, "\n")), i + 1, nil
		}
		block = append(block, lines[i])
	}
	return "", len(lines), &ParseError{
		Path:    path,
		Line:    start + 1,
		Message: "multi-line text block has no terminating semicolon",
	}
}

// parses a loop_ table whose header tags begin at line i, returning the index
// of the first line past the table
func parseLoop(lines []string, i int, doc *Document, path string) (int, error) {
	// collect the header tags
	var tags []string
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			i++
			continue
		}
		if strings.HasPrefix(line, "_") {
			if tag, _, hasValue := splitTagLine(line); !hasValue {
				tags = append(tags, tag)
				i++
				continue
			}
		}
		break
	}
	if len(tags) == 0 {
		return i, nil
	}
	category := loopCategory(tags[0])

	// collect the values, accumulating complete rows
	var values []string
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			i++
			continue
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "data_") || lower == "loop_" || strings.HasPrefix(line, "_") {
			break
		}
		if strings.HasPrefix(line, ";") {
			value, end, err := parseTextBlock(lines, i, path)
			if err != nil {
				return i, err
			}
			values = append(values, value)
			i = end
		} else {
			values = append(values, splitLoopValues(line)...)
			i++
		}
		for len(values) >= len(tags) {
			row := make(map[string]string, len(tags))
			for j, tag := range tags {
				row[tag] = values[j]
			}
			values = values[len(tags):]
			doc.Loops[category] = append(doc.Loops[category], row)
		}
	}
	return i, nil
}

// derives a loop category from its first tag, e.g. "_audit_author.name" and
// "_audit_author_name" both yield "audit_author"
func loopCategory(tag string) string {
	name := strings.TrimPrefix(tag, "_")
	if dot := strings.Index(name, "."); dot >= 0 {
		return name[:dot]
	}
	if us := strings.LastIndex(name, "_"); us > 0 {
		return name[:us]
	}
	return name
}

// splits a line that begins with a data-item tag into the tag and the
// remainder of the line; hasValue is false for a tag-only line
func splitTagLine(line string) (tag, rest string, hasValue bool) {
	if space := strings.IndexAny(line, " \t"); space >= 0 {
		return line[:space], strings.TrimSpace(line[space+1:]), true
	}
	return line, "", false
}

// splits a loop data line into whitespace-separated values, honoring single
// and double quotes
func splitLoopValues(line string) []string {
	var values []string
	i := 0
	for i < len(line) {
		for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= len(line) {
			break
		}
		if line[i] == '\'' || line[i] == '"' {
			quote := line[i]
			i++
			start := i
			for i < len(line) && line[i] != quote {
				i++
			}
			values = append(values, line[start:i])
			i++ // closing quote
		} else {
			start := i
			for i < len(line) && line[i] != ' ' && line[i] != '\t' {
				i++
			}
			values = append(values, cleanValue(line[start:i]))
		}
	}
	return values
}

// cleanValue trims a raw value, strips matched surrounding quotes, and blanks
// the CIF "unknown" (?) and "inapplicable" (.) placeholders
func cleanValue(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			value = value[1 : len(value)-1]
		}
	}
	if value == "?" || value == "." {
		return ""
	}
	return value
}

// splits text into lines with normalized endings
func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return strings.Split(content, "\n")
}
