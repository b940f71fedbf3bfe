package model

import (
	"fmt"
	"sort"
	"strings"
)

// Document is a flat JSON-compatible record as it crosses the store boundary.
// Values are restricted to what encoding/json produces for an object:
// string, float64, bool, nil, []interface{}, map[string]interface{}.
type Document = map[string]interface{}

// Metadata field names stamped onto every document written through the client.
const (
	FieldID             = "id"
	FieldOwnerID        = "ownerId"
	FieldCreatedAt      = "createdAt"
	FieldUpdatedAt      = "updatedAt"
	FieldIdempotencyKey = "idempotencyKey"
)

// ResourceKey identifies a single document or an entire collection listing.
// A zero DocumentID means the key addresses the collection-level query.
type ResourceKey struct {
	Collection string
	DocumentID string
}

// DocumentKey builds a key for a single document.
func DocumentKey(collection, id string) ResourceKey {
	return ResourceKey{Collection: collection, DocumentID: id}
}

// CollectionKey builds a key for a collection listing.
func CollectionKey(collection string) ResourceKey {
	return ResourceKey{Collection: collection}
}

// IsCollection reports whether the key addresses a listing query.
func (k ResourceKey) IsCollection() bool {
	return k.DocumentID == ""
}

// String renders the key in the flat fallback-store namespace:
// "<collection>_<id>" for documents, "<collection>" for listings.
func (k ResourceKey) String() string {
	if k.IsCollection() {
		return k.Collection
	}
	return k.Collection + "_" + k.DocumentID
}

// HasPrefix reports whether the key belongs to the given collection.
// Used for prefix invalidation after writes.
func (k ResourceKey) HasPrefix(collection string) bool {
	return k.Collection == collection
}

// Validate checks the key is usable in the flat namespace.
func (k ResourceKey) Validate() error {
	if k.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if strings.Contains(k.Collection, "_") {
		return fmt.Errorf("collection %q must not contain '_'", k.Collection)
	}
	return nil
}

// DocID returns the document identifier, or "" when absent.
func DocID(doc Document) string {
	id, _ := doc[FieldID].(string)
	return id
}

// UpdatedAt returns the updatedAt timestamp in unix milliseconds, or 0.
func UpdatedAt(doc Document) int64 {
	return millisField(doc, FieldUpdatedAt)
}

// CreatedAt returns the createdAt timestamp in unix milliseconds, or 0.
func CreatedAt(doc Document) int64 {
	return millisField(doc, FieldCreatedAt)
}

// millisField tolerates both int64 (in-process) and float64 (decoded JSON).
func millisField(doc Document, field string) int64 {
	switch v := doc[field].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

// Clone makes a shallow copy so cached documents are not aliased by callers.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// CloneSlice shallow-copies a listing result.
func CloneSlice(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = Clone(d)
	}
	return out
}

// SortDocuments orders a listing by updatedAt descending, ties broken by
// createdAt descending. Sorting happens client-side so the remote store
// needs no composite index.
func SortDocuments(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		ui, uj := UpdatedAt(docs[i]), UpdatedAt(docs[j])
		if ui != uj {
			return ui > uj
		}
		return CreatedAt(docs[i]) > CreatedAt(docs[j])
	})
}
