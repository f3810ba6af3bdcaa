package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/datamart/webapp/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	require.NoError(t, err)
	return c
}

// xsrfMux answers /status with an empty report and issues token.
func xsrfMux(token string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(PathStatus, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: XSRFCookie, Value: token, Path: "/"})
		_, _ = io.WriteString(w, `{"discoverers":[],"ingesters":[],"recent_discoveries":[],"storage":{}}`)
	})
	return mux
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	_, err := New("/just/a/path")
	assert.Error(t, err)
}

func TestHTTPError_Message(t *testing.T) {
	err := &HTTPError{StatusCode: 404, StatusText: "Not Found"}
	assert.Equal(t, "Error 404: Not Found", err.Error())
}

func TestClient_XSRFTokenRoundTrip(t *testing.T) {
	var seen []string
	mux := http.NewServeMux()
	mux.HandleFunc(PathStatus, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Query().Get(XSRFParam))
		http.SetCookie(w, &http.Cookie{Name: XSRFCookie, Value: "tok123", Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"discoverers":[],"ingesters":[],"recent_discoveries":[],"storage":{}}`)
	})
	c := newTestClient(t, mux)

	_, err := c.Status(context.Background())
	require.NoError(t, err)
	_, err = c.Status(context.Background())
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, "", seen[0])
	assert.Equal(t, "tok123", seen[1])
}

func TestClient_UserAgent(t *testing.T) {
	var seen []string
	mux := http.NewServeMux()
	mux.HandleFunc(PathStatus, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.UserAgent())
		_, _ = io.WriteString(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	custom, err := New(srv.URL, WithUserAgent("datamart-test/1.0"))
	require.NoError(t, err)
	_, err = custom.Status(context.Background())
	require.NoError(t, err)

	empty, err := New(srv.URL, WithUserAgent(""))
	require.NoError(t, err)
	_, err = empty.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"datamart-test/1.0", "Datamart"}, seen)
}

func TestClient_Status(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(PathStatus, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Datamart", r.UserAgent())
		_, _ = io.WriteString(w, `{
			"discoverers": [["socrata", "v1"]],
			"ingesters": [],
			"recent_discoveries": [["datamart.socrata.abc", "2024-01-01T00:00:00Z"]],
			"storage": {"/tmp/a": ["datamart.upload.1", ["tag"]], "/tmp/b": null}
		}`)
	})
	c := newTestClient(t, mux)

	report, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Worker{{Name: "socrata", Info: "v1"}}, report.Discoverers)
	assert.Empty(t, report.Ingesters)
	require.Len(t, report.RecentDiscoveries, 1)
	assert.Equal(t, "datamart.socrata.abc", report.RecentDiscoveries[0].DatasetID)
	require.Contains(t, report.Storage, "/tmp/b")
	assert.Nil(t, report.Storage["/tmp/b"])
	assert.Equal(t, &models.StorageEntry{DatasetID: "datamart.upload.1", Tags: []string{"tag"}}, report.Storage["/tmp/a"])
}

func TestClient_ErrorStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(PathStatistics, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	c := newTestClient(t, mux)

	_, err := c.Statistics(context.Background())
	require.Error(t, err)
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, 500, herr.StatusCode)
	assert.Equal(t, "Error 500: Internal Server Error", err.Error())
	assert.Contains(t, herr.Body, "boom")
}

func TestClient_ProfileFile(t *testing.T) {
	mux := xsrfMux("tok")
	mux.HandleFunc(PathProfile, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "tok", r.URL.Query().Get(XSRFParam), "token primed before the first post")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "my data", r.FormValue("name"))
		assert.Empty(t, r.FormValue("address"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "data.csv", hdr.Filename)
		assert.Equal(t, "a,b\n1,2\n", string(body))

		_ = json.NewEncoder(w).Encode(models.ProfileData{
			Columns: []models.ColumnMetadata{{Name: "a", StructuralType: models.TypeInteger}},
			NbRows:  1,
		})
	})
	c := newTestClient(t, mux)

	data, err := c.Profile(context.Background(), models.ProfileRequest{
		File: models.BlobFromBytes("data.csv", []byte("a,b\n1,2\n")),
		Name: "my data",
	})
	require.NoError(t, err)
	require.Len(t, data.Columns, 1)
	assert.Equal(t, models.TypeInteger, data.Columns[0].StructuralType)
	assert.EqualValues(t, 1, data.NbRows)
}

func TestClient_UploadAddress(t *testing.T) {
	mux := xsrfMux("tok")
	mux.HandleFunc(PathUpload, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "http://example.org/d.csv", r.FormValue("address"))
		assert.Equal(t, "remote", r.FormValue("name"))
		assert.Equal(t, "desc", r.FormValue("description"))
		assert.Equal(t, `{"columns":[]}`, r.FormValue("updatedColumns"))
		_, _, err := r.FormFile("file")
		assert.ErrorIs(t, err, http.ErrMissingFile)
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"jobId":"x"}`)
	})
	c := newTestClient(t, mux)

	err := c.Upload(context.Background(), models.UploadData{
		Address:        "http://example.org/d.csv",
		Name:           "remote",
		Description:    "desc",
		UpdatedColumns: `{"columns":[]}`,
	})
	assert.NoError(t, err)
}

func TestClient_PrimeFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(PathStatus, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	c := newTestClient(t, mux)

	err := c.Upload(context.Background(), models.UploadData{Address: "http://x", Name: "n"})
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "Error 503: Service Unavailable", herr.Error())
}

func TestClient_DownloadURL(t *testing.T) {
	c, err := New("http://localhost:8002/base/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8002/base/download/datamart.upload.abc", c.DownloadURL("datamart.upload.abc"))
}
