package store

import (
	"context"
	"errors"

	"github.com/daybook-app/daybook/internal/model"
)

// ErrNotFound is returned when a document is absent from a store
var ErrNotFound = errors.New("not found")

// OpType defines the type of a write operation
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
	OpSet    OpType = "set"
)

// WriteOp is one mutation destined for the remote store. Update payloads are
// partial documents; Set payloads replace the document.
type WriteOp struct {
	Type       OpType
	Collection string
	DocumentID string
	Payload    model.Document
}

// Filter narrows a collection query. Zero value means "everything the owner
// can see".
type Filter struct {
	OwnerID string
	Limit   int
}

// RemoteStore is the authoritative hosted document store boundary.
type RemoteStore interface {
	GetDoc(ctx context.Context, collection, id string) (model.Document, error)
	SetDoc(ctx context.Context, collection, id string, doc model.Document) error
	AddDoc(ctx context.Context, collection string, doc model.Document) (string, error)
	UpdateDoc(ctx context.Context, collection, id string, partial model.Document) error
	DeleteDoc(ctx context.Context, collection, id string) error
	QueryDocs(ctx context.Context, collection string, filter Filter) ([]model.Document, error)
	BatchCommit(ctx context.Context, ops []WriteOp) error
	Ping(ctx context.Context) error
}

// FallbackStore is the synchronous local persistence layer. Keys live in the
// flat namespace produced by model.ResourceKey.String. Values are a single
// document for document keys and a listing slice for collection keys; the
// store persists both as JSON.
type FallbackStore interface {
	Read(key string) (interface{}, error)
	Write(key string, value interface{}) error
	Delete(key string) error
	// Keys returns every stored key with the given collection prefix.
	Keys(collection string) ([]string, error)
	Close() error
}
