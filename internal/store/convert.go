package store

import (
	"fmt"

	"github.com/daybook-app/daybook/internal/model"
)

// AsDocument coerces a fallback-store value into a document. JSON round
// tripping yields map[string]interface{}; in-memory stores may hold the
// typed form directly.
func AsDocument(value interface{}) (model.Document, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case model.Document:
		return v, nil
	}
	return nil, fmt.Errorf("fallback value is %T, not a document", value)
}

// AsListing coerces a fallback-store value into a listing slice.
func AsListing(value interface{}) ([]model.Document, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []model.Document:
		return v, nil
	case []interface{}:
		docs := make([]model.Document, 0, len(v))
		for _, item := range v {
			doc, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("listing item is %T, not a document", item)
			}
			docs = append(docs, doc)
		}
		return docs, nil
	}
	return nil, fmt.Errorf("fallback value is %T, not a listing", value)
}
