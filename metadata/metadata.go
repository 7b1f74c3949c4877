// The metadata package defines the deposition metadata document, the layered
// template scheme that produces it, and its serialized form for the Zenodo
// deposition API.
package metadata

import (
	"encoding/json"
	"time"
)

// a person or organization credited as a creator of the deposited dataset
type Creator struct {
	Name        string `json:"name" yaml:"name"`
	Affiliation string `json:"affiliation,omitempty" yaml:"affiliation,omitempty"`
	Orcid       string `json:"orcid,omitempty" yaml:"orcid,omitempty"`
}

// a Zenodo community the deposition is submitted to
type Community struct {
	Identifier string `json:"identifier" yaml:"identifier"`
}

// a funding source for the deposited dataset
type Grant struct {
	Funder      string `json:"funder,omitempty" yaml:"funder,omitempty"`
	AwardNumber string `json:"award_number,omitempty" yaml:"award_number,omitempty"`
	AwardTitle  string `json:"award_title,omitempty" yaml:"award_title,omitempty"`
	URL         string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Document is a deposition metadata document. Template layers are partial
// Documents: an empty scalar means "not set by this layer", and a nil list
// means "not provided by this layer" (while a present-but-empty list means
// "use this empty list").
type Document struct {
	Title           string `json:"title,omitempty" yaml:"title,omitempty"`
	Description     string `json:"description,omitempty" yaml:"description,omitempty"`
	UploadType      string `json:"upload_type,omitempty" yaml:"upload_type,omitempty"`
	AccessRight     string `json:"access_right,omitempty" yaml:"access_right,omitempty"`
	License         string `json:"license,omitempty" yaml:"license,omitempty"`
	PublicationDate string `json:"publication_date,omitempty" yaml:"publication_date,omitempty"`
	Notes           string `json:"notes,omitempty" yaml:"notes,omitempty"`

	Keywords    []string    `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Creators    []Creator   `json:"creators,omitempty" yaml:"creators,omitempty"`
	Communities []Community `json:"communities,omitempty" yaml:"communities,omitempty"`
	Grants      []Grant     `json:"grants,omitempty" yaml:"grants,omitempty"`

	// experimental parameters attached at assembly time (never supplied by a
	// template layer; see AttachExperimental)
	EDParameters map[string]string `json:"ed_parameters,omitempty" yaml:"ed_parameters,omitempty"`
}

// AttachExperimental merges run-time experimental data into the document as
// the final assembly step: the scalar parameters land in EDParameters and
// the rendered parameter-table fragment is appended to the description.
// Run-time data always wins over template text in these slots.
func (d *Document) AttachExperimental(parameters map[string]string, tableFragment string) {
	if len(parameters) > 0 {
		d.EDParameters = make(map[string]string, len(parameters))
		for name, value := range parameters {
			d.EDParameters[name] = value
		}
	}
	if tableFragment != "" {
		if d.Description != "" {
			d.Description += "\n\n"
		}
		d.Description += tableFragment
	}
}

// the wire form of deposition metadata accepted by the Zenodo API
type depositionMetadata struct {
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	UploadType      string           `json:"upload_type"`
	AccessRight     string           `json:"access_right"`
	License         string           `json:"license,omitempty"`
	PublicationDate string           `json:"publication_date"`
	Notes           string           `json:"notes,omitempty"`
	Keywords        []string         `json:"keywords,omitempty"`
	Creators        []Creator        `json:"creators"`
	Communities     []Community      `json:"communities,omitempty"`
	Grants          []map[string]any `json:"grants,omitempty"`
}

// Payload serializes the document for the Zenodo deposition API, wrapped in
// the {"metadata": ...} envelope the API expects. The publication date
// defaults to today when the document doesn't carry one.
func (d *Document) Payload() ([]byte, error) {
	date := d.PublicationDate
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	md := depositionMetadata{
		Title:           d.Title,
		Description:     d.Description,
		UploadType:      d.UploadType,
		AccessRight:     d.AccessRight,
		License:         d.License,
		PublicationDate: date,
		Notes:           d.Notes,
		Keywords:        d.Keywords,
		Creators:        d.Creators,
		Communities:     d.Communities,
		Grants:          grantsPayload(d.Grants),
	}
	return json.Marshal(map[string]depositionMetadata{"metadata": md})
}

// Zenodo accepts either a bare award id or a funder/award object
func grantsPayload(grants []Grant) []map[string]any {
	if len(grants) == 0 {
		return nil
	}
	wire := make([]map[string]any, 0, len(grants))
	for _, grant := range grants {
		if grant.AwardTitle == "" {
			wire = append(wire, map[string]any{"id": grant.AwardNumber})
		} else {
			wire = append(wire, map[string]any{
				"funder": grant.Funder,
				"award":  map[string]any{"title": grant.AwardTitle, "number": grant.AwardNumber},
			})
		}
	}
	return wire
}
