package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	syncerrors "github.com/daybook-app/daybook/internal/errors"
	"github.com/daybook-app/daybook/internal/model"
	"github.com/daybook-app/daybook/internal/store"
)

// HTTPRemote implements store.RemoteStore against a REST/JSON document API.
//
// Routes:
//
//	GET    /v1/{collection}/{id}
//	PUT    /v1/{collection}/{id}
//	POST   /v1/{collection}
//	PATCH  /v1/{collection}/{id}
//	DELETE /v1/{collection}/{id}
//	GET    /v1/{collection}?ownerId=&limit=
//	POST   /v1/batch
//	GET    /healthz
type HTTPRemote struct {
	baseURL   string
	authToken string
	client    *http.Client
	logger    *zap.Logger
}

// NewHTTPRemote creates a remote store client for the given base URL.
func NewHTTPRemote(baseURL, authToken string, timeout time.Duration, logger *zap.Logger) (*HTTPRemote, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid remote base URL %q: %w", baseURL, err)
	}
	return &HTTPRemote{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}, nil
}

type batchRequest struct {
	Operations []batchOperation `json:"operations"`
}

type batchOperation struct {
	Type       string         `json:"type"`
	Collection string         `json:"collection"`
	ID         string         `json:"id,omitempty"`
	Payload    model.Document `json:"payload,omitempty"`
}

type addResponse struct {
	ID string `json:"id"`
}

type queryResponse struct {
	Documents []model.Document `json:"documents"`
}

// GetDoc fetches a single document.
func (r *HTTPRemote) GetDoc(ctx context.Context, collection, id string) (model.Document, error) {
	var doc model.Document
	err := r.do(ctx, http.MethodGet, r.docURL(collection, id), nil, &doc)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// SetDoc replaces a document in full.
func (r *HTTPRemote) SetDoc(ctx context.Context, collection, id string, doc model.Document) error {
	return r.do(ctx, http.MethodPut, r.docURL(collection, id), doc, nil)
}

// AddDoc creates a document and returns the remote-assigned identifier.
func (r *HTTPRemote) AddDoc(ctx context.Context, collection string, doc model.Document) (string, error) {
	var resp addResponse
	if err := r.do(ctx, http.MethodPost, r.collectionURL(collection), doc, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", syncerrors.RemoteRejected("remote returned no document id", nil)
	}
	return resp.ID, nil
}

// UpdateDoc merges a partial document into the stored one.
func (r *HTTPRemote) UpdateDoc(ctx context.Context, collection, id string, partial model.Document) error {
	return r.do(ctx, http.MethodPatch, r.docURL(collection, id), partial, nil)
}

// DeleteDoc removes a document. A 404 is treated as success so deletes stay
// idempotent across retries.
func (r *HTTPRemote) DeleteDoc(ctx context.Context, collection, id string) error {
	err := r.do(ctx, http.MethodDelete, r.docURL(collection, id), nil, nil)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// QueryDocs lists documents in a collection.
func (r *HTTPRemote) QueryDocs(ctx context.Context, collection string, filter store.Filter) ([]model.Document, error) {
	u := r.collectionURL(collection)
	q := url.Values{}
	if filter.OwnerID != "" {
		q.Set("ownerId", filter.OwnerID)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	var resp queryResponse
	if err := r.do(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// BatchCommit submits all operations as one atomic request.
func (r *HTTPRemote) BatchCommit(ctx context.Context, ops []store.WriteOp) error {
	req := batchRequest{Operations: make([]batchOperation, len(ops))}
	for i, op := range ops {
		req.Operations[i] = batchOperation{
			Type:       string(op.Type),
			Collection: op.Collection,
			ID:         op.DocumentID,
			Payload:    op.Payload,
		}
	}
	return r.do(ctx, http.MethodPost, r.baseURL+"/v1/batch", req, nil)
}

// Ping probes remote reachability.
func (r *HTTPRemote) Ping(ctx context.Context) error {
	return r.do(ctx, http.MethodGet, r.baseURL+"/healthz", nil, nil)
}

func (r *HTTPRemote) docURL(collection, id string) string {
	return r.baseURL + "/v1/" + url.PathEscape(collection) + "/" + url.PathEscape(id)
}

func (r *HTTPRemote) collectionURL(collection string) string {
	return r.baseURL + "/v1/" + url.PathEscape(collection)
}

// do runs one request and decodes the response into out when non-nil.
func (r *HTTPRemote) do(ctx context.Context, method, rawURL string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return syncerrors.InternalError("failed to encode request body", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return syncerrors.InternalError("failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.authToken)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return syncerrors.RemoteUnavailable(fmt.Sprintf("%s %s failed", method, rawURL), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return store.ErrNotFound
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return syncerrors.RemoteUnavailable(
			fmt.Sprintf("%s %s returned %d", method, rawURL, resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return syncerrors.RemoteRejected(
			fmt.Sprintf("%s %s returned %d: %s", method, rawURL, resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return syncerrors.RemoteRejected("failed to decode response body", err)
	}
	return nil
}
