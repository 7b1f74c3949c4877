package cif

import "fmt"

// indicates that a CIF file contains a structurally malformed multi-line
// text block; the file should be skipped, but other files are unaffected
type ParseError struct {
	Path    string // the offending file
	Line    int    // 1-based line where the block opens
	Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("Couldn't parse CIF file '%s' (line %d): %s", e.Path, e.Line, e.Message)
}
