package tracker

import "github.com/nextlevelbuilder/papersync/internal/api"

// MergeDocuments merges updated documents into current by ID: existing
// entries are replaced in place, unknown ones are appended. Order is
// preserved and entries absent from updates are never dropped — the poll
// response is partial, not authoritative for the whole list.
func MergeDocuments(current, updates []api.Document) []api.Document {
	if len(updates) == 0 {
		return current
	}

	index := make(map[string]int, len(current))
	for i, doc := range current {
		index[doc.ID] = i
	}

	merged := make([]api.Document, len(current))
	copy(merged, current)

	for _, doc := range updates {
		if i, ok := index[doc.ID]; ok {
			merged[i] = doc
		} else {
			index[doc.ID] = len(merged)
			merged = append(merged, doc)
		}
	}
	return merged
}
