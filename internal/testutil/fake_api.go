// fake_api.go - In-memory datamart API for client-side tests
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/datamart/webapp/internal/models"
)

// XSRFToken is the token the fake API issues.
const XSRFToken = "fake-xsrf-token"

// RecordedUpload is one multipart upload received by the fake API.
type RecordedUpload struct {
	Address        string
	FileName       string
	FileContent    string
	Name           string
	Description    string
	UpdatedColumns string
	XSRF           string
}

// FakeAPI serves /status, /api/statistics, /api/v1/profile and /api/v1/upload.
type FakeAPI struct {
	*httptest.Server

	mu           sync.Mutex
	status       *models.StatusReport
	statistics   *models.Statistics
	profile      *models.ProfileData
	profileCode  int
	uploadCode   int
	uploads      []RecordedUpload
	statusCalls  int
	profileCalls int
	userAgent    string
}

// NewFakeAPI starts a fake API closed at the end of the test.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()
	f := &FakeAPI{
		status: &models.StatusReport{
			Discoverers:       []models.Worker{},
			Ingesters:         []models.Worker{},
			RecentDiscoveries: []models.Discovery{},
			Storage:           map[string]*models.StorageEntry{},
		},
		statistics:  &models.Statistics{RecentDiscoveries: []models.Discovery{}, SourcesCounts: map[string]int{}},
		profile:     &models.ProfileData{Columns: []models.ColumnMetadata{}},
		profileCode: http.StatusOK,
		uploadCode:  http.StatusAccepted,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", f.handleStatus)
	mux.HandleFunc("/api/statistics", f.handleStatistics)
	mux.HandleFunc("/api/v1/profile", f.handleProfile)
	mux.HandleFunc("/api/v1/upload", f.handleUpload)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// SetStatus replaces the report served on /status.
func (f *FakeAPI) SetStatus(report *models.StatusReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = report
}

// SetStatistics replaces the payload served on /api/statistics.
func (f *FakeAPI) SetStatistics(stats *models.Statistics) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statistics = stats
}

// SetProfile sets the profile answer, or the failure status code when code is not 200.
func (f *FakeAPI) SetProfile(profile *models.ProfileData, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile = profile
	f.profileCode = code
}

// SetUploadStatus sets the status code answered to uploads.
func (f *FakeAPI) SetUploadStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCode = code
}

// Uploads returns the uploads received so far.
func (f *FakeAPI) Uploads() []RecordedUpload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedUpload(nil), f.uploads...)
}

// StatusCalls returns how many times /status was fetched.
func (f *FakeAPI) StatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

// UserAgent returns the User-Agent of the last /status request.
func (f *FakeAPI) UserAgent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userAgent
}

// ProfileCalls returns how many profiling requests were received.
func (f *FakeAPI) ProfileCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profileCalls
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *FakeAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.statusCalls++
	f.userAgent = r.UserAgent()
	report := f.status
	f.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "_xsrf", Value: XSRFToken, Path: "/"})
	writeJSON(w, http.StatusOK, report)
}

func (f *FakeAPI) handleStatistics(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	stats := f.statistics
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, stats)
}

func (f *FakeAPI) handleProfile(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.profileCalls++
	profile, code := f.profile, f.profileCode
	f.mu.Unlock()

	if code != http.StatusOK {
		http.Error(w, http.StatusText(code), code)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (f *FakeAPI) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec := RecordedUpload{
		Address:        r.FormValue("address"),
		Name:           r.FormValue("name"),
		Description:    r.FormValue("description"),
		UpdatedColumns: r.FormValue("updatedColumns"),
		XSRF:           r.URL.Query().Get("_xsrf"),
	}
	if file, hdr, err := r.FormFile("file"); err == nil {
		data, _ := io.ReadAll(file)
		file.Close()
		rec.FileName = hdr.Filename
		rec.FileContent = string(data)
	}

	f.mu.Lock()
	f.uploads = append(f.uploads, rec)
	code := f.uploadCode
	f.mu.Unlock()

	if code >= 300 {
		http.Error(w, http.StatusText(code), code)
		return
	}
	writeJSON(w, code, map[string]string{"jobId": "fake-job"})
}
