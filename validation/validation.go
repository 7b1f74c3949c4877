// The validation package checks a deposition metadata document against the
// requirements of the Zenodo deposition API before any network traffic
// happens. Validation is pure and collects every problem it finds rather
// than stopping at the first one.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/zedd-project/zedd/metadata"
)

// how serious a validation finding is
type Severity int

const (
	// the deposition would be rejected by the API
	SeverityError Severity = iota
	// the deposition would be accepted but is probably not what the user wants
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// a single problem found in a metadata document
type Issue struct {
	Field    string
	Message  string
	Severity Severity
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Field, i.Message)
}

// upload types accepted by the deposition API
var uploadTypes = map[string]bool{
	"publication": true, "poster": true, "presentation": true, "dataset": true,
	"image": true, "video": true, "software": true, "lesson": true,
	"physicalobject": true, "other": true,
}

// access rights accepted by the deposition API
var accessRights = map[string]bool{
	"open": true, "embargoed": true, "restricted": true, "closed": true,
}

var orcidRegexp = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{3}[\dX]$`)

const (
	minTitleLength       = 3
	maxTitleLength       = 250
	minDescriptionLength = 10
)

// license identifiers the repository is known to accept; the live service
// accepts more, so an unrecognized identifier is only a warning
var knownLicenses = map[string]bool{
	"cc-zero": true, "cc0-1.0": true,
	"cc-by-4.0": true, "cc-by-sa-4.0": true, "cc-by-nc-4.0": true,
	"cc-by-nd-4.0": true, "cc-by-nc-sa-4.0": true, "cc-by-nc-nd-4.0": true,
	"mit": true, "apache-2.0": true, "bsd-2-clause": true,
	"bsd-3-clause": true, "gpl-2.0": true, "gpl-3.0": true,
	"lgpl-3.0": true, "agpl-3.0": true, "mpl-2.0": true,
	"isc": true, "unlicense": true, "odc-by-1.0": true, "odbl-1.0": true,
}

// Validate checks the document and returns every issue found, errors first
// within each field in document order. An empty result means the document is
// ready to deposit.
func Validate(doc metadata.Document) []Issue {
	var issues []Issue
	fail := func(field, message string) {
		issues = append(issues, Issue{Field: field, Message: message, Severity: SeverityError})
	}
	warn := func(field, message string) {
		issues = append(issues, Issue{Field: field, Message: message, Severity: SeverityWarning})
	}

	if doc.Title == "" {
		fail("title", "A title is required.")
	} else if len(strings.TrimSpace(doc.Title)) < minTitleLength {
		fail("title", fmt.Sprintf("The title must be at least %d characters long.", minTitleLength))
	} else if len(doc.Title) > maxTitleLength {
		fail("title", fmt.Sprintf("The title exceeds %d characters.", maxTitleLength))
	}

	if doc.Description == "" {
		fail("description", "A description is required.")
	} else if len(strings.TrimSpace(doc.Description)) < minDescriptionLength {
		fail("description", fmt.Sprintf("The description must be at least %d characters long.", minDescriptionLength))
	}

	if !uploadTypes[doc.UploadType] {
		fail("upload_type", fmt.Sprintf("'%s' is not a recognized upload type.", doc.UploadType))
	}

	if !accessRights[doc.AccessRight] {
		fail("access_right", fmt.Sprintf("'%s' is not a recognized access right.", doc.AccessRight))
	} else if doc.AccessRight == "open" || doc.AccessRight == "embargoed" {
		if doc.License == "" {
			fail("license", fmt.Sprintf("A license is required for '%s' depositions.", doc.AccessRight))
		} else if !knownLicenses[strings.ToLower(doc.License)] {
			warn("license", fmt.Sprintf("'%s' is not a commonly recognized license identifier.", doc.License))
		}
	}

	if len(doc.Creators) == 0 {
		fail("creators", "At least one creator is required.")
	}
	for i, creator := range doc.Creators {
		field := fmt.Sprintf("creators[%d]", i)
		if creator.Name == "" {
			fail(field+".name", "Every creator needs a name.")
		}
		if creator.Orcid != "" && !orcidRegexp.MatchString(creator.Orcid) {
			fail(field+".orcid", fmt.Sprintf("'%s' is not a valid ORCID identifier.", creator.Orcid))
		}
	}

	for i, community := range doc.Communities {
		if community.Identifier == "" {
			fail(fmt.Sprintf("communities[%d].identifier", i), "Community entries need an identifier.")
		}
	}

	seenKeywords := make(map[string]bool)
	for i, keyword := range doc.Keywords {
		field := fmt.Sprintf("keywords[%d]", i)
		if keyword == "" {
			fail(field, "Keywords cannot be empty.")
			continue
		}
		if seenKeywords[keyword] {
			warn(field, fmt.Sprintf("'%s' appears more than once.", keyword))
		}
		seenKeywords[keyword] = true
	}

	for i, grant := range doc.Grants {
		if grant.AwardNumber == "" {
			fail(fmt.Sprintf("grants[%d].award_number", i), "Grant entries need an award number.")
		}
	}

	if doc.PublicationDate != "" {
		if _, err := time.Parse("2006-01-02", doc.PublicationDate); err != nil {
			fail("publication_date", fmt.Sprintf("'%s' is not an ISO 8601 date (YYYY-MM-DD).", doc.PublicationDate))
		}
	}

	return issues
}

// Errors filters issues down to the ones that block a deposition.
func Errors(issues []Issue) []Issue {
	var blocking []Issue
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			blocking = append(blocking, issue)
		}
	}
	return blocking
}
