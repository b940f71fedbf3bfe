package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	syncerrors "github.com/daybook-app/daybook/internal/errors"
	"github.com/daybook-app/daybook/internal/metrics"
	"github.com/daybook-app/daybook/internal/model"
	"github.com/daybook-app/daybook/internal/store"
)

// localIDPrefix marks identifiers minted while the remote was unreachable.
// Reconnect reconciliation re-issues those creates and adopts the remote id.
const localIDPrefix = "local-"

// Options tune a single facade call.
type Options struct {
	// ForceRefresh bypasses the cache on reads.
	ForceRefresh bool
	// TTL overrides the cache TTL for the entry this read fills.
	TTL time.Duration
}

// SyncConfig holds facade configuration
type SyncConfig struct {
	OwnerID     string
	DefaultTTL  time.Duration
	ListingTTLs map[string]time.Duration
}

// SyncService is the document store client every application module calls.
// Reads flow client -> cache -> single-flight -> backoff -> remote, with the
// fallback store written through on success and serving alone on failure.
// Writes always land in the fallback store; the remote attempt may fail
// without rolling the local write back, so the two stores are allowed to
// diverge until reconciliation.
type SyncService struct {
	cfg      SyncConfig
	remote   store.RemoteStore
	fallback store.FallbackStore
	cache    *CacheService
	flight   *FlightService
	retry    *RetryService
	batch    *BatchService
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu    sync.Mutex
	dirty map[model.ResourceKey]int64 // key -> updatedAt of the divergent write

	localSeq atomic.Int64
	now      func() time.Time // overridable in tests
}

// NewSyncService creates the facade from its composed parts
func NewSyncService(
	cfg SyncConfig,
	remote store.RemoteStore,
	fallback store.FallbackStore,
	cache *CacheService,
	flight *FlightService,
	retry *RetryService,
	batch *BatchService,
	logger *zap.Logger,
	m *metrics.Metrics,
) *SyncService {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 30 * time.Second
	}
	return &SyncService{
		cfg:      cfg,
		remote:   remote,
		fallback: fallback,
		cache:    cache,
		flight:   flight,
		retry:    retry,
		batch:    batch,
		logger:   logger,
		metrics:  m,
		dirty:    make(map[model.ResourceKey]int64),
		now:      time.Now,
	}
}

// GetDocument returns one document, from cache when fresh, from the remote
// store on a miss, and from the fallback store when the remote is
// unreachable. Read failures are never surfaced: the degraded result is the
// fallback value or nil.
func (s *SyncService) GetDocument(ctx context.Context, collection, id string, opts ...Options) (model.Document, error) {
	key := model.DocumentKey(collection, id)
	if err := key.Validate(); err != nil {
		return nil, syncerrors.InvalidArgument(err.Error(), nil)
	}
	if id == "" {
		return nil, syncerrors.InvalidArgument("document id is required", nil)
	}
	opt := firstOption(opts)

	if !opt.ForceRefresh {
		if v, ok := s.cache.Get(key); ok {
			doc, err := store.AsDocument(v)
			if err == nil {
				return model.Clone(doc), nil
			}
			s.cache.Invalidate(key)
		}
	}

	value, err := s.flight.Load(ctx, key, func(ctx context.Context) (interface{}, error) {
		v, err := s.retry.Run(ctx, key.String(), func(ctx context.Context) (interface{}, error) {
			return s.remote.GetDoc(ctx, collection, id)
		})
		if err != nil {
			return nil, err
		}
		doc := v.(model.Document)
		s.writeThrough(key, doc)
		s.cache.Set(key, doc, s.ttlFor(key, opt))
		return doc, nil
	})
	if err == nil {
		return model.Clone(value.(model.Document)), nil
	}

	s.logger.Warn("Remote read failed, serving fallback",
		zap.String("key", key.String()),
		zap.Error(err))
	if doc := s.readFallbackDocument(key); doc != nil {
		s.metrics.FallbackReadsServedTotal.Inc()
		return doc, nil
	}
	return nil, nil
}

// GetCollection returns the collection listing ordered by updatedAt
// descending, ties broken by createdAt descending. Sorting happens
// client-side.
func (s *SyncService) GetCollection(ctx context.Context, collection string, opts ...Options) ([]model.Document, error) {
	key := model.CollectionKey(collection)
	if err := key.Validate(); err != nil {
		return nil, syncerrors.InvalidArgument(err.Error(), nil)
	}
	opt := firstOption(opts)

	if !opt.ForceRefresh {
		if v, ok := s.cache.Get(key); ok {
			docs, err := store.AsListing(v)
			if err == nil {
				return model.CloneSlice(docs), nil
			}
			s.cache.Invalidate(key)
		}
	}

	value, err := s.flight.Load(ctx, key, func(ctx context.Context) (interface{}, error) {
		v, err := s.retry.Run(ctx, key.String(), func(ctx context.Context) (interface{}, error) {
			return s.remote.QueryDocs(ctx, collection, store.Filter{OwnerID: s.cfg.OwnerID})
		})
		if err != nil {
			return nil, err
		}
		docs := v.([]model.Document)
		model.SortDocuments(docs)
		if werr := s.fallback.Write(key.String(), docs); werr != nil {
			s.logger.Warn("Fallback write-through failed",
				zap.String("key", key.String()),
				zap.Error(werr))
		} else {
			s.metrics.FallbackWritesTotal.Inc()
		}
		s.cache.Set(key, docs, s.ttlFor(key, opt))
		return docs, nil
	})
	if err == nil {
		return model.CloneSlice(value.([]model.Document)), nil
	}

	s.logger.Warn("Remote listing failed, serving fallback",
		zap.String("collection", collection),
		zap.Error(err))
	return s.readFallbackListing(collection), nil
}

// SetDocument replaces a document. The local write always succeeds and is
// never rolled back; a remote failure is reported so the caller can tell the
// user cloud sync did not complete.
func (s *SyncService) SetDocument(ctx context.Context, collection, id string, doc model.Document) error {
	key := model.DocumentKey(collection, id)
	if err := key.Validate(); err != nil {
		return syncerrors.InvalidArgument(err.Error(), nil)
	}
	if id == "" {
		return syncerrors.InvalidArgument("document id is required", nil)
	}

	stored := s.stampWrite(key, doc)
	stamp := model.UpdatedAt(stored)
	s.writeLocal(key, stored)
	s.markDirty(key, stamp)

	if err := <-s.batch.Enqueue(store.WriteOp{
		Type:       store.OpSet,
		Collection: collection,
		DocumentID: id,
		Payload:    stored,
	}); err != nil {
		s.logger.Warn("Remote write failed, keeping local copy",
			zap.String("key", key.String()),
			zap.Error(err))
		return syncerrors.RemoteRejected("cloud sync incomplete for "+key.String(), err)
	}

	s.clearDirty(key, stamp)
	return nil
}

// UpdateDocument merges a partial document into the stored one.
func (s *SyncService) UpdateDocument(ctx context.Context, collection, id string, partial model.Document) error {
	key := model.DocumentKey(collection, id)
	if err := key.Validate(); err != nil {
		return syncerrors.InvalidArgument(err.Error(), nil)
	}
	if id == "" {
		return syncerrors.InvalidArgument("document id is required", nil)
	}

	merged := s.readFallbackDocument(key)
	if merged == nil {
		merged = model.Document{}
	}
	for k, v := range partial {
		merged[k] = v
	}
	stored := s.stampWrite(key, merged)
	stamp := model.UpdatedAt(stored)
	s.writeLocal(key, stored)
	s.markDirty(key, stamp)

	payload := model.Clone(partial)
	payload[model.FieldUpdatedAt] = stamp
	payload[model.FieldOwnerID] = s.cfg.OwnerID

	if err := <-s.batch.Enqueue(store.WriteOp{
		Type:       store.OpUpdate,
		Collection: collection,
		DocumentID: id,
		Payload:    payload,
	}); err != nil {
		s.logger.Warn("Remote update failed, keeping local copy",
			zap.String("key", key.String()),
			zap.Error(err))
		return syncerrors.RemoteRejected("cloud sync incomplete for "+key.String(), err)
	}

	s.clearDirty(key, stamp)
	return nil
}

// AddDocument creates a document. On remote success the remote-assigned id
// is canonical; on failure a locally-generated id stands in until reconnect
// reconciliation re-issues the create under its idempotency key. The
// returned document carries the id in effect and all stamped metadata.
func (s *SyncService) AddDocument(ctx context.Context, collection string, doc model.Document) (model.Document, error) {
	if err := model.CollectionKey(collection).Validate(); err != nil {
		return nil, syncerrors.InvalidArgument(err.Error(), nil)
	}

	nowMillis := s.now().UnixMilli()
	stored := model.Clone(doc)
	if stored == nil {
		stored = model.Document{}
	}
	stored[model.FieldOwnerID] = s.cfg.OwnerID
	stored[model.FieldCreatedAt] = nowMillis
	stored[model.FieldUpdatedAt] = nowMillis
	if _, ok := stored[model.FieldIdempotencyKey].(string); !ok {
		stored[model.FieldIdempotencyKey] = uuid.NewString()
	}

	var syncErr error
	var id string
	v, err := s.retry.Run(ctx, collection+"/add", func(ctx context.Context) (interface{}, error) {
		return s.remote.AddDoc(ctx, collection, stored)
	})
	if err == nil {
		id = v.(string)
	} else {
		id = s.localID()
		s.logger.Warn("Remote create failed, assigning local id",
			zap.String("collection", collection),
			zap.String("id", id),
			zap.Error(err))
		syncErr = syncerrors.RemoteRejected("cloud sync incomplete for "+collection+"/"+id, err)
	}

	stored[model.FieldID] = id
	key := model.DocumentKey(collection, id)
	s.writeLocal(key, stored)
	if syncErr != nil {
		s.markDirty(key, nowMillis)
		return model.Clone(stored), syncErr
	}
	return model.Clone(stored), nil
}

// DeleteDocument attempts the remote delete and then deletes locally no
// matter what the remote said.
func (s *SyncService) DeleteDocument(ctx context.Context, collection, id string) error {
	key := model.DocumentKey(collection, id)
	if err := key.Validate(); err != nil {
		return syncerrors.InvalidArgument(err.Error(), nil)
	}
	if id == "" {
		return syncerrors.InvalidArgument("document id is required", nil)
	}

	remoteErr := <-s.batch.Enqueue(store.WriteOp{
		Type:       store.OpDelete,
		Collection: collection,
		DocumentID: id,
	})

	if err := s.fallback.Delete(key.String()); err != nil {
		s.logger.Warn("Fallback delete failed",
			zap.String("key", key.String()),
			zap.Error(err))
	}
	s.removeFromFallbackListing(collection, id)
	s.cache.InvalidateCollection(collection)

	if remoteErr != nil {
		s.markDirty(key, s.now().UnixMilli())
		s.logger.Warn("Remote delete failed, local copy removed",
			zap.String("key", key.String()),
			zap.Error(remoteErr))
		return syncerrors.RemoteRejected("cloud sync incomplete for "+key.String(), remoteErr)
	}
	s.clearDirty(key, s.now().UnixMilli())
	return nil
}

// Invalidate drops all cache entries for a collection. Modules must call it
// after any mutation they perform outside the facade.
func (s *SyncService) Invalidate(collection string) {
	s.cache.InvalidateCollection(collection)
}

// Dirty reports how many writes have not reached the remote store yet.
func (s *SyncService) Dirty() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

// Reconcile pushes every divergent local write to the remote store,
// last-write-wins by updatedAt. Wired to the connection monitor's online
// transition; safe to call at any time.
func (s *SyncService) Reconcile(ctx context.Context) {
	s.mu.Lock()
	pending := make(map[model.ResourceKey]int64, len(s.dirty))
	for k, v := range s.dirty {
		pending[k] = v
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	s.logger.Info("Reconciling divergent writes", zap.Int("pending", len(pending)))

	for key, stamp := range pending {
		s.reconcileKey(ctx, key, stamp)
	}
}

func (s *SyncService) reconcileKey(ctx context.Context, key model.ResourceKey, stamp int64) {
	value, err := s.fallback.Read(key.String())
	if errors.Is(err, store.ErrNotFound) {
		// Deleted locally while the remote was unreachable.
		if _, rerr := s.retry.Run(ctx, key.String(), func(ctx context.Context) (interface{}, error) {
			return nil, s.remote.DeleteDoc(ctx, key.Collection, key.DocumentID)
		}); rerr != nil {
			s.logger.Warn("Reconcile delete failed", zap.String("key", key.String()), zap.Error(rerr))
			return
		}
		s.clearDirty(key, stamp)
		return
	}
	if err != nil {
		s.logger.Warn("Reconcile fallback read failed", zap.String("key", key.String()), zap.Error(err))
		return
	}
	doc, err := store.AsDocument(value)
	if err != nil {
		s.logger.Warn("Reconcile fallback value malformed", zap.String("key", key.String()), zap.Error(err))
		return
	}

	if strings.HasPrefix(key.DocumentID, localIDPrefix) {
		s.reconcileLocalCreate(ctx, key, doc, stamp)
		return
	}

	// Last write wins by updatedAt: a newer remote copy is pulled down
	// instead of being clobbered.
	if remoteDoc, gerr := s.remote.GetDoc(ctx, key.Collection, key.DocumentID); gerr == nil {
		if model.UpdatedAt(remoteDoc) > model.UpdatedAt(doc) {
			s.writeLocal(key, remoteDoc)
			s.clearDirty(key, stamp)
			return
		}
	}

	if _, rerr := s.retry.Run(ctx, key.String(), func(ctx context.Context) (interface{}, error) {
		return nil, s.remote.SetDoc(ctx, key.Collection, key.DocumentID, doc)
	}); rerr != nil {
		s.logger.Warn("Reconcile push failed", zap.String("key", key.String()), zap.Error(rerr))
		return
	}
	s.clearDirty(key, stamp)
}

// reconcileLocalCreate re-issues a create whose first attempt never reached
// the remote. The payload still carries its original idempotency key, so a
// remote that saw the first attempt after all returns the existing id
// instead of minting a duplicate.
func (s *SyncService) reconcileLocalCreate(ctx context.Context, key model.ResourceKey, doc model.Document, stamp int64) {
	payload := model.Clone(doc)
	delete(payload, model.FieldID)

	v, rerr := s.retry.Run(ctx, key.String(), func(ctx context.Context) (interface{}, error) {
		return s.remote.AddDoc(ctx, key.Collection, payload)
	})
	if rerr != nil {
		s.logger.Warn("Reconcile create failed", zap.String("key", key.String()), zap.Error(rerr))
		return
	}
	remoteID := v.(string)

	adopted := model.Clone(doc)
	adopted[model.FieldID] = remoteID
	newKey := model.DocumentKey(key.Collection, remoteID)
	s.writeLocal(newKey, adopted)

	if err := s.fallback.Delete(key.String()); err != nil {
		s.logger.Warn("Failed to drop local-id copy", zap.String("key", key.String()), zap.Error(err))
	}
	s.removeFromFallbackListing(key.Collection, key.DocumentID)
	s.cache.InvalidateCollection(key.Collection)
	s.clearDirty(key, stamp)

	s.logger.Info("Adopted remote id for offline create",
		zap.String("local_id", key.DocumentID),
		zap.String("remote_id", remoteID))
}

// --- internals ---

func firstOption(opts []Options) Options {
	if len(opts) > 0 {
		return opts[0]
	}
	return Options{}
}

func (s *SyncService) ttlFor(key model.ResourceKey, opt Options) time.Duration {
	if opt.TTL > 0 {
		return opt.TTL
	}
	if key.IsCollection() {
		if ttl, ok := s.cfg.ListingTTLs[key.Collection]; ok {
			return ttl
		}
	}
	return s.cfg.DefaultTTL
}

func (s *SyncService) localID() string {
	return localIDPrefix + strconv.FormatInt(s.now().UnixMilli(), 10) + "-" +
		strconv.FormatInt(s.localSeq.Add(1), 10)
}

// stampWrite applies record metadata: ownerId, a preserved createdAt, and a
// fresh updatedAt.
func (s *SyncService) stampWrite(key model.ResourceKey, doc model.Document) model.Document {
	stored := model.Clone(doc)
	if stored == nil {
		stored = model.Document{}
	}
	stored[model.FieldID] = key.DocumentID
	stored[model.FieldOwnerID] = s.cfg.OwnerID
	stored[model.FieldUpdatedAt] = s.now().UnixMilli()

	if model.CreatedAt(stored) == 0 {
		if existing := s.readFallbackDocument(key); existing != nil && model.CreatedAt(existing) != 0 {
			stored[model.FieldCreatedAt] = model.CreatedAt(existing)
		} else {
			stored[model.FieldCreatedAt] = stored[model.FieldUpdatedAt]
		}
	}
	return stored
}

// writeLocal persists a document to the fallback store and invalidates the
// collection's cache entries. Invalidation strictly follows the write.
func (s *SyncService) writeLocal(key model.ResourceKey, doc model.Document) {
	if err := s.fallback.Write(key.String(), doc); err != nil {
		s.logger.Warn("Fallback write failed",
			zap.String("key", key.String()),
			zap.Error(err))
	} else {
		s.metrics.FallbackWritesTotal.Inc()
	}
	s.cache.InvalidateCollection(key.Collection)
}

// writeThrough persists a remotely fetched document without touching cache
// invalidation; the caller fills the cache right after.
func (s *SyncService) writeThrough(key model.ResourceKey, doc model.Document) {
	if err := s.fallback.Write(key.String(), doc); err != nil {
		s.logger.Warn("Fallback write-through failed",
			zap.String("key", key.String()),
			zap.Error(err))
	} else {
		s.metrics.FallbackWritesTotal.Inc()
	}
}

// readFallbackDocument returns the fallback copy or nil.
func (s *SyncService) readFallbackDocument(key model.ResourceKey) model.Document {
	value, err := s.fallback.Read(key.String())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Fallback read failed",
				zap.String("key", key.String()),
				zap.Error(err))
		}
		return nil
	}
	doc, cerr := store.AsDocument(value)
	if cerr != nil {
		s.logger.Warn("Fallback value malformed",
			zap.String("key", key.String()),
			zap.Error(cerr))
		return nil
	}
	return model.Clone(doc)
}

// readFallbackListing rebuilds the collection from the last fetched listing
// overlaid with individually stored documents, which are fresher after
// offline writes.
func (s *SyncService) readFallbackListing(collection string) []model.Document {
	byID := make(map[string]model.Document)

	if value, err := s.fallback.Read(collection); err == nil {
		if docs, cerr := store.AsListing(value); cerr == nil {
			for _, doc := range docs {
				if id := model.DocID(doc); id != "" {
					byID[id] = doc
				}
			}
		}
	}

	keys, err := s.fallback.Keys(collection)
	if err != nil {
		s.logger.Warn("Fallback key scan failed",
			zap.String("collection", collection),
			zap.Error(err))
	}
	for _, k := range keys {
		if k == collection {
			continue
		}
		value, rerr := s.fallback.Read(k)
		if rerr != nil {
			continue
		}
		if doc, cerr := store.AsDocument(value); cerr == nil {
			if id := model.DocID(doc); id != "" {
				byID[id] = doc
			}
		}
	}

	if len(byID) == 0 {
		return nil
	}
	docs := make([]model.Document, 0, len(byID))
	for _, doc := range byID {
		docs = append(docs, model.Clone(doc))
	}
	model.SortDocuments(docs)
	s.metrics.FallbackReadsServedTotal.Inc()
	return docs
}

// removeFromFallbackListing drops a document from the stored listing, if one
// was ever fetched. The key overlay cannot observe deletions on its own.
func (s *SyncService) removeFromFallbackListing(collection, id string) {
	value, err := s.fallback.Read(collection)
	if err != nil {
		return
	}
	docs, cerr := store.AsListing(value)
	if cerr != nil {
		return
	}
	kept := docs[:0]
	for _, doc := range docs {
		if model.DocID(doc) != id {
			kept = append(kept, doc)
		}
	}
	if len(kept) == len(docs) {
		return
	}
	if werr := s.fallback.Write(collection, kept); werr != nil {
		s.logger.Warn("Failed to update fallback listing",
			zap.String("collection", collection),
			zap.Error(werr))
	}
}

func (s *SyncService) markDirty(key model.ResourceKey, stamp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.dirty[key]; !ok || stamp > existing {
		s.dirty[key] = stamp
	}
}

// clearDirty removes the divergence marker unless a newer write re-dirtied
// the key in the meantime.
func (s *SyncService) clearDirty(key model.ResourceKey, upTo int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.dirty[key]; ok && existing <= upTo {
		delete(s.dirty, key)
	}
}
