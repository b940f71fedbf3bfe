package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/daybook-app/daybook/internal/model"
)

// MemoryRemote implements RemoteStore in memory. It backs tests and the
// offline mode of the CLI; Fail/SetOnline inject remote outages.
type MemoryRemote struct {
	mu      sync.Mutex
	data    map[string]map[string]model.Document // collection -> id -> doc
	online  bool
	failErr error

	// Call counters, readable by tests.
	GetCalls    int
	QueryCalls  int
	WriteCalls  int
	DeleteCalls int
	BatchCalls  int
	BatchSizes  []int
	PingCalls   int
}

// NewMemoryRemote creates an empty, reachable in-memory remote store.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		data:   make(map[string]map[string]model.Document),
		online: true,
	}
}

// SetOnline toggles reachability; while offline every call fails.
func (r *MemoryRemote) SetOnline(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = online
}

// Fail forces every call to return err until Fail(nil).
func (r *MemoryRemote) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

func (r *MemoryRemote) reachable() error {
	if r.failErr != nil {
		return r.failErr
	}
	if !r.online {
		return context.DeadlineExceeded
	}
	return nil
}

func (r *MemoryRemote) collection(name string) map[string]model.Document {
	c, ok := r.data[name]
	if !ok {
		c = make(map[string]model.Document)
		r.data[name] = c
	}
	return c
}

// GetDoc returns a copy of the stored document or ErrNotFound.
func (r *MemoryRemote) GetDoc(ctx context.Context, collection, id string) (model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.GetCalls++
	if err := r.reachable(); err != nil {
		return nil, err
	}
	doc, ok := r.collection(collection)[id]
	if !ok {
		return nil, ErrNotFound
	}
	return model.Clone(doc), nil
}

// SetDoc stores a full document under id.
func (r *MemoryRemote) SetDoc(ctx context.Context, collection, id string, doc model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.WriteCalls++
	if err := r.reachable(); err != nil {
		return err
	}
	r.setLocked(collection, id, doc)
	return nil
}

func (r *MemoryRemote) setLocked(collection, id string, doc model.Document) {
	stored := model.Clone(doc)
	stored[model.FieldID] = id
	r.collection(collection)[id] = stored
}

// AddDoc stores a new document and returns its assigned identifier. Creates
// carrying an idempotency key already seen in the collection return the
// existing document's id instead of inserting a duplicate.
func (r *MemoryRemote) AddDoc(ctx context.Context, collection string, doc model.Document) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.WriteCalls++
	if err := r.reachable(); err != nil {
		return "", err
	}
	return r.addLocked(collection, doc), nil
}

func (r *MemoryRemote) addLocked(collection string, doc model.Document) string {
	if key, ok := doc[model.FieldIdempotencyKey].(string); ok && key != "" {
		for id, existing := range r.collection(collection) {
			if existing[model.FieldIdempotencyKey] == key {
				return id
			}
		}
	}
	id := uuid.NewString()
	r.setLocked(collection, id, doc)
	return id
}

// UpdateDoc merges partial into the stored document.
func (r *MemoryRemote) UpdateDoc(ctx context.Context, collection, id string, partial model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.WriteCalls++
	if err := r.reachable(); err != nil {
		return err
	}
	return r.updateLocked(collection, id, partial)
}

func (r *MemoryRemote) updateLocked(collection, id string, partial model.Document) error {
	doc, ok := r.collection(collection)[id]
	if !ok {
		// Updates against unknown ids upsert; offline-created documents
		// reach the remote for the first time through an update.
		doc = model.Document{}
	}
	merged := model.Clone(doc)
	for k, v := range partial {
		merged[k] = v
	}
	r.setLocked(collection, id, merged)
	return nil
}

// DeleteDoc removes a document; deleting an absent id is not an error.
func (r *MemoryRemote) DeleteDoc(ctx context.Context, collection, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DeleteCalls++
	if err := r.reachable(); err != nil {
		return err
	}
	delete(r.collection(collection), id)
	return nil
}

// QueryDocs returns copies of every document in the collection that passes
// the filter, in no particular order.
func (r *MemoryRemote) QueryDocs(ctx context.Context, collection string, filter Filter) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.QueryCalls++
	if err := r.reachable(); err != nil {
		return nil, err
	}

	var docs []model.Document
	for _, doc := range r.collection(collection) {
		if filter.OwnerID != "" && doc[model.FieldOwnerID] != filter.OwnerID {
			continue
		}
		docs = append(docs, model.Clone(doc))
		if filter.Limit > 0 && len(docs) == filter.Limit {
			break
		}
	}
	return docs, nil
}

// BatchCommit applies all operations atomically: reachability is checked
// once up front and the in-memory apply cannot fail partway.
func (r *MemoryRemote) BatchCommit(ctx context.Context, ops []WriteOp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.BatchCalls++
	r.BatchSizes = append(r.BatchSizes, len(ops))
	if err := r.reachable(); err != nil {
		return err
	}
	for _, op := range ops {
		switch op.Type {
		case OpCreate:
			r.addLocked(op.Collection, op.Payload)
		case OpSet:
			r.setLocked(op.Collection, op.DocumentID, op.Payload)
		case OpUpdate:
			if err := r.updateLocked(op.Collection, op.DocumentID, op.Payload); err != nil {
				return err
			}
		case OpDelete:
			delete(r.collection(op.Collection), op.DocumentID)
		}
	}
	return nil
}

// Ping reports reachability.
func (r *MemoryRemote) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PingCalls++
	return r.reachable()
}

// Len reports how many documents the collection holds.
func (r *MemoryRemote) Len(collection string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.collection(collection))
}

// MemoryFallback implements FallbackStore in memory for tests.
type MemoryFallback struct {
	mu   sync.RWMutex
	data map[string]interface{}
}

// NewMemoryFallback creates an empty in-memory fallback store.
func NewMemoryFallback() *MemoryFallback {
	return &MemoryFallback{data: make(map[string]interface{})}
}

// Read retrieves the value stored under key
func (s *MemoryFallback) Read(key string) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Write stores value under key
func (s *MemoryFallback) Write(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Delete removes key
func (s *MemoryFallback) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Keys returns all stored keys for the collection, the listing key included.
func (s *MemoryFallback) Keys(collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if k == collection || (len(k) > len(collection) && k[:len(collection)+1] == collection+"_") {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryFallback) Close() error {
	return nil
}
