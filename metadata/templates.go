package metadata

import (
	_ "embed"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// the default template shipped with the program
//
//go:embed default_template.yaml
var bundledTemplate []byte

// BundledTemplate returns the bundled default template layer.
func BundledTemplate() *Document {
	var doc Document
	// the bundled template is compiled in, so a parse failure is a build
	// defect rather than a runtime condition
	if err := yaml.Unmarshal(bundledTemplate, &doc); err != nil {
		slog.Error("Couldn't parse the bundled metadata template: " + err.Error())
		return &Document{}
	}
	return &doc
}

// LoadTemplate reads a partial metadata document (YAML or JSON) from the
// given path. A file that exists but cannot be parsed is a TemplateError.
func LoadTemplate(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &TemplateError{Path: path, Message: err.Error()}
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &TemplateError{Path: path, Message: err.Error()}
	}
	return &doc, nil
}

// LoadUserTemplate reads the user's default template layer. A missing file
// simply means the user hasn't customized anything, so it yields a nil layer
// and no error; a present but malformed file is a TemplateError.
func LoadUserTemplate(path string) (*Document, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return LoadTemplate(path)
}

// SaveTemplate writes the document to the given path as YAML, for users who
// want to seed a custom template from the current state.
func SaveTemplate(doc *Document, path string) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
