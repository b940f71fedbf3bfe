package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	syncerrors "github.com/daybook-app/daybook/internal/errors"
	"github.com/daybook-app/daybook/internal/model"
	"github.com/daybook-app/daybook/internal/store"
)

func newTestRemote(t *testing.T, handler http.HandlerFunc) *HTTPRemote {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	remote, err := NewHTTPRemote(srv.URL, "test-token", 2*time.Second, zap.NewNop())
	require.NoError(t, err)
	return remote
}

func TestGetDocDecodesDocument(t *testing.T) {
	var gotPath, gotAuth string
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "42", "title": "x", "updatedAt": 100,
		})
	})

	doc, err := remote.GetDoc(context.Background(), "tasks", "42")
	require.NoError(t, err)
	assert.Equal(t, "/v1/tasks/42", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "x", doc["title"])
	assert.Equal(t, int64(100), model.UpdatedAt(doc))
}

func TestGetDocNotFound(t *testing.T) {
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := remote.GetDoc(context.Background(), "tasks", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetDocSendsFullBody(t *testing.T) {
	var gotMethod string
	var gotBody model.Document
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})

	err := remote.SetDoc(context.Background(), "tasks", "42", model.Document{"title": "x"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "x", gotBody["title"])
}

func TestAddDocReturnsAssignedID(t *testing.T) {
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/notes", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "abc-123"})
	})

	id, err := remote.AddDoc(context.Background(), "notes", model.Document{"title": "n"})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
}

func TestAddDocMissingIDRejected(t *testing.T) {
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	_, err := remote.AddDoc(context.Background(), "notes", model.Document{"title": "n"})
	require.Error(t, err)
	assert.Equal(t, syncerrors.ErrCodeRemoteRejected, syncerrors.GetCode(err))
}

func TestUpdateDocUsesPatch(t *testing.T) {
	var gotMethod string
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	})

	err := remote.UpdateDoc(context.Background(), "tasks", "42", model.Document{"done": true})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
}

func TestDeleteDocTreats404AsSuccess(t *testing.T) {
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	err := remote.DeleteDoc(context.Background(), "tasks", "gone")
	assert.NoError(t, err)
}

func TestQueryDocsEncodesFilter(t *testing.T) {
	var gotQuery string
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"documents": []map[string]interface{}{
				{"id": "1", "title": "a"},
				{"id": "2", "title": "b"},
			},
		})
	})

	docs, err := remote.QueryDocs(context.Background(), "tasks", store.Filter{OwnerID: "u1", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "limit=10&ownerId=u1", gotQuery)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0]["title"])
}

func TestBatchCommitPayloadShape(t *testing.T) {
	var got batchRequest
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/batch", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	ops := []store.WriteOp{
		{Type: store.OpSet, Collection: "tasks", DocumentID: "1", Payload: model.Document{"title": "a"}},
		{Type: store.OpDelete, Collection: "notes", DocumentID: "2"},
	}
	require.NoError(t, remote.BatchCommit(context.Background(), ops))

	require.Len(t, got.Operations, 2)
	assert.Equal(t, string(store.OpSet), got.Operations[0].Type)
	assert.Equal(t, "tasks", got.Operations[0].Collection)
	assert.Equal(t, "1", got.Operations[0].ID)
	assert.Equal(t, "a", got.Operations[0].Payload["title"])
	assert.Equal(t, string(store.OpDelete), got.Operations[1].Type)
}

func TestServerErrorsMapToRemoteUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusTooManyRequests} {
		remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})
		_, err := remote.GetDoc(context.Background(), "tasks", "42")
		require.Error(t, err)
		assert.Equal(t, syncerrors.ErrCodeRemoteUnavailable, syncerrors.GetCode(err), "status %d", status)
	}
}

func TestClientErrorsMapToRemoteRejected(t *testing.T) {
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "owner mismatch", http.StatusForbidden)
	})

	err := remote.SetDoc(context.Background(), "tasks", "42", model.Document{"title": "x"})
	require.Error(t, err)
	assert.Equal(t, syncerrors.ErrCodeRemoteRejected, syncerrors.GetCode(err))
	assert.Contains(t, err.Error(), "owner mismatch")
}

func TestConnectionRefusedMapsToRemoteUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	remote, err := NewHTTPRemote(url, "", time.Second, zap.NewNop())
	require.NoError(t, err)

	_, gerr := remote.GetDoc(context.Background(), "tasks", "42")
	require.Error(t, gerr)
	assert.Equal(t, syncerrors.ErrCodeRemoteUnavailable, syncerrors.GetCode(gerr))
}

func TestPingUsesHealthEndpoint(t *testing.T) {
	var gotPath string
	remote := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, remote.Ping(context.Background()))
	assert.Equal(t, "/healthz", gotPath)
}
