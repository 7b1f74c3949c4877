package metadata

// Merge combines the three template layers into one document. Precedence,
// lowest to highest: bundled default, user default, run override. Scalar
// fields take the highest layer's non-empty value; list fields (keywords,
// creators, communities, grants) are replaced wholesale by the highest layer
// that provides them at all, even as an empty list. Either of the upper
// layers may be nil. Merging is pure: the inputs are not modified, and the
// same layers always merge to the same document.
func Merge(bundled, userDefault, runOverride *Document) Document {
	merged := Document{}
	for _, layer := range []*Document{bundled, userDefault, runOverride} {
		if layer != nil {
			merged = Overlay(merged, *layer)
		}
	}
	return merged
}

// Overlay applies the upper layer's fields over the base document, using the
// per-field rules described for Merge. CLI flags are applied this way as a
// final layer above the run override file.
func Overlay(base, upper Document) Document {
	merged := base

	merged.Title = overrideScalar(base.Title, upper.Title)
	merged.Description = overrideScalar(base.Description, upper.Description)
	merged.UploadType = overrideScalar(base.UploadType, upper.UploadType)
	merged.AccessRight = overrideScalar(base.AccessRight, upper.AccessRight)
	merged.License = overrideScalar(base.License, upper.License)
	merged.PublicationDate = overrideScalar(base.PublicationDate, upper.PublicationDate)
	merged.Notes = overrideScalar(base.Notes, upper.Notes)

	// list fields are copied whichever layer supplies them, so the merged
	// document never shares backing arrays with a layer
	merged.Keywords = pickList(base.Keywords, upper.Keywords)
	merged.Creators = pickList(base.Creators, upper.Creators)
	merged.Communities = pickList(base.Communities, upper.Communities)
	merged.Grants = pickList(base.Grants, upper.Grants)

	// EDParameters belong to AttachExperimental, never to template layers
	merged.EDParameters = base.EDParameters

	return merged
}

func overrideScalar(base, upper string) string {
	if upper != "" {
		return upper
	}
	return base
}

// returns a copy of the upper list when it is provided at all (even empty),
// falling through to a copy of the base list otherwise
func pickList[T any](base, upper []T) []T {
	if upper != nil {
		return append([]T(nil), upper...)
	}
	if base != nil {
		return append([]T(nil), base...)
	}
	return nil
}
