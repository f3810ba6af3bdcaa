package coordinator

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/datamart/webapp/internal/metrics"
	"github.com/datamart/webapp/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(items []models.Discovery) []string {
	out := make([]string, len(items))
	for i, d := range items {
		out[i] = d.DatasetID
	}
	return out
}

func TestRecentList_InsertOrReplace(t *testing.T) {
	l := NewRecentList(3)
	l.InsertOrReplace(models.Discovery{DatasetID: "a", Timestamp: "1"})
	l.InsertOrReplace(models.Discovery{DatasetID: "b", Timestamp: "2"})
	assert.Equal(t, []string{"b", "a"}, ids(l.Items()))

	l.InsertOrReplace(models.Discovery{DatasetID: "a", Timestamp: "3"})
	items := l.Items()
	assert.Equal(t, []string{"b", "a"}, ids(items), "replace keeps the position")
	assert.Equal(t, "3", items[1].Timestamp)

	l.InsertOrReplace(models.Discovery{DatasetID: "c"})
	l.InsertOrReplace(models.Discovery{DatasetID: "d"})
	assert.Equal(t, []string{"d", "c", "b"}, ids(l.Items()))
}

func TestRecentList_Init(t *testing.T) {
	l := NewRecentList(2, models.Discovery{DatasetID: "x"}, models.Discovery{DatasetID: "y"}, models.Discovery{DatasetID: "z"})
	assert.Equal(t, []string{"x", "y"}, ids(l.Items()))

	items := l.Items()
	items[0].DatasetID = "mutated"
	assert.Equal(t, "x", l.Items()[0].DatasetID)
}

type fakeStorage map[string]*models.StorageEntry

func (f fakeStorage) Entries() map[string]*models.StorageEntry { return f }

func TestCoordinator_Workers(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(WithMetrics(m))

	d1, err := c.Register(KindDiscoverer, "socrata", "v1")
	require.NoError(t, err)
	_, err = c.Register(KindIngester, "profiler", "v2")
	require.NoError(t, err)
	_, err = c.Register(KindDiscoverer, "ckan", "v3")
	require.NoError(t, err)

	_, err = c.Register("scraper", "x", "")
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = c.Register(KindIngester, "", "")
	assert.Error(t, err)

	report := c.Status()
	assert.Equal(t, []models.Worker{{Name: "socrata", Info: "v1"}, {Name: "ckan", Info: "v3"}}, report.Discoverers)
	assert.Equal(t, []models.Worker{{Name: "profiler", Info: "v2"}}, report.Ingesters)

	c.Unregister(d1)
	c.Unregister(d1)
	c.Unregister(9999)
	assert.Equal(t, []models.Worker{{Name: "ckan", Info: "v3"}}, c.Status().Discoverers)
}

func TestCoordinator_EmptyStatus(t *testing.T) {
	report := New().Status()
	assert.NotNil(t, report.Discoverers)
	assert.NotNil(t, report.Ingesters)
	assert.NotNil(t, report.RecentDiscoveries)
	assert.NotNil(t, report.Storage)
}

func TestCoordinator_Discoveries(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := New(WithStorage(fakeStorage{"/data/1": nil}))
	c.now = func() time.Time { return now }

	for i := 0; i < NbRecent+5; i++ {
		c.RecordDiscovery(fmt.Sprintf("datamart.upload.%d", i), "upload")
	}
	c.RecordDiscovery("datamart.socrata.x", "socrata")

	stats := c.Statistics()
	require.Len(t, stats.RecentDiscoveries, NbRecent)
	assert.Equal(t, "datamart.socrata.x", stats.RecentDiscoveries[0].DatasetID)
	assert.Equal(t, "2024-05-01T12:00:00Z", stats.RecentDiscoveries[0].Timestamp)
	assert.Equal(t, map[string]int{"upload": NbRecent + 5, "socrata": 1}, stats.SourcesCounts)

	report := c.Status()
	assert.Contains(t, report.Storage, "/data/1")
}

func TestCoordinator_Restore(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	files := []*models.FileInfo{
		{ID: "3", DatasetID: "datamart.upload.c", Status: models.FileStatusStored, UploadedAt: t0.Add(2 * time.Hour)},
		{ID: "2", Status: models.FileStatusAllocated, UploadedAt: t0.Add(time.Hour)},
		{ID: "1", DatasetID: "datamart.upload.a", Status: models.FileStatusStored, UploadedAt: t0},
	}

	c := New()
	assert.Equal(t, 2, c.Restore("upload", files))

	stats := c.Statistics()
	assert.Equal(t, []string{"datamart.upload.c", "datamart.upload.a"}, ids(stats.RecentDiscoveries))
	assert.Equal(t, "2024-05-01T14:00:00Z", stats.RecentDiscoveries[0].Timestamp)
	assert.Equal(t, map[string]int{"upload": 2}, stats.SourcesCounts)

	assert.Equal(t, 0, New().Restore("upload", nil))
}

func TestCoordinator_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := c.Register(KindIngester, fmt.Sprintf("w%d", i), "")
			assert.NoError(t, err)
			c.RecordDiscovery(fmt.Sprintf("d%d", i), "upload")
			_ = c.Status()
			c.Unregister(id)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, c.Status().Ingesters)
	assert.Equal(t, 20, c.Statistics().SourcesCounts["upload"])
}
