package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransformations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/transformations/query", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var filter TransformationFilter
		require.NoError(t, json.NewDecoder(r.Body).Decode(&filter))
		assert.Equal(t, []Status{StatusActive, StatusFlush}, filter.Statuses)

		err := json.NewEncoder(w).Encode([]Transformation{
			{ID: 1, Name: "merge", Type: "Processing", Status: StatusActive},
			{ID: 2, Name: "repl", Type: "Replication", Status: StatusFlush, Plugin: "Standard"},
		})
		require.NoError(t, err)
	}))
	defer srv.Close()

	client := NewHTTP(srv.URL, time.Second)
	got, err := client.Transformations(context.Background(), TransformationFilter{
		Statuses: []Status{StatusActive, StatusFlush},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, "Standard", got[1].Plugin)
}

func TestHTTPTransformation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/transformations/prod-merge", r.URL.Path)
		err := json.NewEncoder(w).Encode(Transformation{ID: 42, Name: "prod-merge"})
		require.NoError(t, err)
	}))
	defer srv.Close()

	client := NewHTTP(srv.URL, time.Second)
	got, err := client.Transformation(context.Background(), "prod-merge")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)
}

func TestHTTPTransformationFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/transformations/7/files", r.URL.Path)
		assert.Equal(t, "Unused", r.URL.Query().Get("status"))
		err := json.NewEncoder(w).Encode([]File{
			{ID: "f1", Status: FileStatusUnused},
			{ID: "f2", Status: FileStatusUnused},
		})
		require.NoError(t, err)
	}))
	defer srv.Close()

	client := NewHTTP(srv.URL, time.Second)
	got, err := client.TransformationFiles(context.Background(), 7, FileStatusUnused)
	require.NoError(t, err)
	assert.Equal(t, []File{{ID: "f1", Status: FileStatusUnused}, {ID: "f2", Status: FileStatusUnused}}, got)
}

func TestHTTPAddTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/transformations/7/tasks", r.URL.Path)

		var body struct {
			Location string   `json:"location"`
			FileIDs  []string `json:"file_ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "SE-1", body.Location)
		assert.Equal(t, []string{"f1", "f2"}, body.FileIDs)
	}))
	defer srv.Close()

	client := NewHTTP(srv.URL, time.Second)
	require.NoError(t, client.AddTask(context.Background(), 7, []string{"f1", "f2"}, "SE-1"))
}

func TestHTTPSetParameter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transformations/7/parameters", r.URL.Path)

		var body struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Status", body.Name)
		assert.Equal(t, "Active", body.Value)
	}))
	defer srv.Close()

	client := NewHTTP(srv.URL, time.Second)
	require.NoError(t, client.SetParameter(context.Background(), 7, "Status", "Active"))
}

func TestHTTPSetFileStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transformations/7/files/status", r.URL.Path)

		var body struct {
			Status  FileStatus `json:"status"`
			FileIDs []string   `json:"file_ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, FileStatusMissingInCatalog, body.Status)
		assert.Equal(t, []string{"gone"}, body.FileIDs)
	}))
	defer srv.Close()

	client := NewHTTP(srv.URL, time.Second)
	require.NoError(t, client.SetFileStatus(context.Background(), 7, FileStatusMissingInCatalog, []string{"gone"}))
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "transformation not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewHTTP(srv.URL, time.Second)
	_, err := client.Transformation(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "transformation not found")
}

func TestHTTPMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewHTTP(srv.URL, time.Second)
	_, err := client.Transformations(context.Background(), TransformationFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding response")
}

func TestHTTPUnreachable(t *testing.T) {
	client := NewHTTP("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := client.Transformations(context.Background(), TransformationFilter{})
	require.Error(t, err)
}
