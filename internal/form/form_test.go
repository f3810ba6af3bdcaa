package form

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/datamart/webapp/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type responder func(req models.ProfileRequest) (*models.ProfileData, error)

type fakeProfiler struct {
	mu         sync.Mutex
	calls      []models.ProfileRequest
	responders []responder
}

func (p *fakeProfiler) Profile(_ context.Context, req models.ProfileRequest) (*models.ProfileData, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	var r responder
	if len(p.responders) > 0 {
		r = p.responders[0]
		p.responders = p.responders[1:]
	}
	p.mu.Unlock()
	if r == nil {
		return &models.ProfileData{}, nil
	}
	return r(req)
}

func (p *fakeProfiler) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type submitRecorder struct {
	mu     sync.Mutex
	calls  []models.UploadData
	result bool
}

func (s *submitRecorder) submit(_ context.Context, data models.UploadData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, data)
	return s.result
}

func twoColumns(prefix string) responder {
	return func(models.ProfileRequest) (*models.ProfileData, error) {
		return &models.ProfileData{Columns: []models.ColumnMetadata{
			{Name: prefix + "A", StructuralType: models.TypeInteger},
			{Name: prefix + "B", StructuralType: models.TypeFloat},
		}}, nil
	}
}

func csvBlob() *models.Blob {
	return models.BlobFromBytes("data.csv", []byte("colA,colB\n1,2.5\n"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		input Input
		want  FieldErrors
	}{
		{
			name:  "upload mode complete",
			input: Input{Mode: ModeUpload, HasFile: true, Name: "ds"},
		},
		{
			name:  "upload mode without file",
			input: Input{Mode: ModeUpload, Name: "ds"},
			want:  FieldErrors{File: MsgFileRequired},
		},
		{
			name:  "upload mode ignores address",
			input: Input{Mode: ModeUpload, Address: "http://x/y.csv", Name: "ds"},
			want:  FieldErrors{File: MsgFileRequired},
		},
		{
			name:  "missing name",
			input: Input{Mode: ModeUpload, HasFile: true},
			want:  FieldErrors{Name: MsgNameRequired},
		},
		{
			name:  "url mode without address",
			input: Input{Mode: ModeURL, HasFile: true, Name: "ds"},
			want:  FieldErrors{Address: MsgURLRequired},
		},
		{
			name:  "url mode complete",
			input: Input{Mode: ModeURL, Address: "http://x/y.csv", Name: "ds"},
		},
		{
			name:  "everything missing in url mode",
			input: Input{Mode: ModeURL},
			want:  FieldErrors{Address: MsgURLRequired, Name: MsgNameRequired},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(tt.input)
			assert.Equal(t, tt.want, v.Errors)
			assert.Equal(t, tt.want == FieldErrors{}, v.Valid)
			if v.Valid {
				assert.NoError(t, v.Err())
			} else {
				assert.Error(t, v.Err())
			}
		})
	}
}

func TestSubmit_InvalidUploadDoesNotCallNetwork(t *testing.T) {
	rec := &submitRecorder{result: true}
	f := NewForm(ModeUpload, &fakeProfiler{}, rec.submit)

	ok, err := f.Submit(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), MsgFileRequired)
	assert.Contains(t, err.Error(), MsgNameRequired)

	v := f.View()
	assert.Equal(t, MsgFileRequired, v.Validation.Errors.File)
	assert.Equal(t, MsgNameRequired, v.Validation.Errors.Name)
	assert.False(t, v.Validation.Valid)
	assert.Equal(t, models.ProfilingStopped, v.ProfilingStatus)
	assert.IsType(t, Invalid{}, f.State())
	assert.Empty(t, rec.calls)
}

func TestSubmit_URLModeWithoutEdits(t *testing.T) {
	rec := &submitRecorder{result: true}
	f := NewForm(ModeURL, &fakeProfiler{}, rec.submit)
	f.SetAddress("http://x/y.csv")
	f.SetName("foo")
	require.Equal(t, models.ProfilingStopped, f.ProfilingStatus())

	ok, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, rec.calls, 1)
	got := rec.calls[0]
	assert.Equal(t, `{"columns":[]}`, got.UpdatedColumns)
	assert.Equal(t, "http://x/y.csv", got.Address)
	assert.Equal(t, "foo", got.Name)
	assert.Nil(t, got.File)
}

func TestUpdateColumnType(t *testing.T) {
	p := &fakeProfiler{responders: []responder{twoColumns("col")}}
	f := NewForm(ModeUpload, p, nil)
	f.SetName("ds")
	require.True(t, f.SelectFile(context.Background(), csvBlob()))
	require.Equal(t, models.ProfilingSucceeded, f.ProfilingStatus())

	require.NoError(t, f.UpdateColumnType("http://schema.org/Text", "colA"))

	v := f.View()
	assert.Equal(t, []string{"colA"}, v.ColumnsName)
	require.Len(t, v.Profile.Columns, 2)
	assert.Equal(t, models.TypeText, v.Profile.Columns[0].StructuralType)
	assert.Equal(t, models.TypeFloat, v.Profile.Columns[1].StructuralType)

	t.Run("bare type name is prefixed", func(t *testing.T) {
		require.NoError(t, f.UpdateColumnType("Boolean", "colB"))
		v := f.View()
		assert.Equal(t, models.TypeBoolean, v.Profile.Columns[1].StructuralType)
		assert.Equal(t, []string{"colA", "colB"}, v.ColumnsName)
	})

	t.Run("editing twice keeps one name", func(t *testing.T) {
		require.NoError(t, f.UpdateColumnType("Integer", "colA"))
		assert.Equal(t, []string{"colA", "colB"}, f.View().ColumnsName)
	})

	t.Run("unknown column", func(t *testing.T) {
		err := f.UpdateColumnType("Text", "nope")
		assert.ErrorIs(t, err, ErrUnknownColumn)
		assert.Equal(t, []string{"colA", "colB"}, f.View().ColumnsName)
	})

	t.Run("does not profile again", func(t *testing.T) {
		assert.Equal(t, 1, p.callCount())
	})
}

func TestUpdateColumnType_WithoutProfile(t *testing.T) {
	f := NewForm(ModeUpload, &fakeProfiler{}, nil)
	assert.ErrorIs(t, f.UpdateColumnType("Text", "colA"), ErrNoProfile)
}

func TestSubmit_SendsOnlyEditedColumns(t *testing.T) {
	rec := &submitRecorder{result: true}
	p := &fakeProfiler{responders: []responder{twoColumns("col")}}
	f := NewForm(ModeUpload, p, rec.submit)
	f.SetName("ds")
	require.True(t, f.SelectFile(context.Background(), csvBlob()))
	require.NoError(t, f.UpdateColumnType("Text", "colB"))

	ok, err := f.Submit(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, rec.calls, 1)
	assert.JSONEq(t,
		`{"columns":[{"name":"colB","structural_type":"http://schema.org/Text"}]}`,
		rec.calls[0].UpdatedColumns)
	require.NotNil(t, rec.calls[0].File)
	assert.Equal(t, "data.csv", rec.calls[0].File.Name)
	assert.Empty(t, rec.calls[0].Address)
}

func TestSubmit_SuccessResetsForm(t *testing.T) {
	rec := &submitRecorder{result: true}
	p := &fakeProfiler{responders: []responder{twoColumns("col")}}
	f := NewForm(ModeUpload, p, rec.submit)
	f.SetName("ds")
	f.SetDescription("some data")
	f.SetAddress("http://stale/address.csv")
	require.True(t, f.SelectFile(context.Background(), csvBlob()))
	require.NoError(t, f.UpdateColumnType("Text", "colA"))

	ok, err := f.Submit(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	v := f.View()
	assert.Empty(t, v.Name)
	assert.Empty(t, v.Description)
	assert.Empty(t, v.Address)
	assert.Empty(t, v.ColumnsName)
	assert.False(t, v.HasFile)
	assert.Nil(t, v.Profile)
	assert.False(t, v.Submitting)
	assert.True(t, v.Validation.Valid)
	assert.Equal(t, models.ProfilingStopped, v.ProfilingStatus)
	assert.IsType(t, Idle{}, f.State())
}

func TestSubmit_FailurePreservesFields(t *testing.T) {
	rec := &submitRecorder{result: false}
	p := &fakeProfiler{responders: []responder{twoColumns("col")}}
	f := NewForm(ModeUpload, p, rec.submit)
	f.SetName("ds")
	f.SetDescription("some data")
	require.True(t, f.SelectFile(context.Background(), csvBlob()))
	require.NoError(t, f.UpdateColumnType("Text", "colA"))

	ok, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	v := f.View()
	assert.Equal(t, "ds", v.Name)
	assert.Equal(t, "some data", v.Description)
	assert.Equal(t, "data.csv", v.FileName)
	assert.Equal(t, []string{"colA"}, v.ColumnsName)
	assert.False(t, v.Submitting)
	assert.Equal(t, models.ProfilingStopped, v.ProfilingStatus)
	assert.IsType(t, SubmitFailed{}, f.State())

	rec.result = true
	ok, err = f.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, rec.calls, 2)
}

func TestSubmit_RejectsConcurrentSubmission(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	f := NewForm(ModeURL, &fakeProfiler{}, func(context.Context, models.UploadData) bool {
		close(entered)
		<-release
		return true
	})
	f.SetAddress("http://x/y.csv")
	f.SetName("foo")

	done := make(chan bool)
	go func() {
		ok, _ := f.Submit(context.Background())
		done <- ok
	}()
	<-entered

	assert.True(t, f.View().Submitting)
	_, err := f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInProgress)

	close(release)
	assert.True(t, <-done)
}

func TestSubmit_SelectFileDuringSubmitKeepsUploadExclusive(t *testing.T) {
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	p := &fakeProfiler{}
	f := NewForm(ModeUpload, p, func(context.Context, models.UploadData) bool {
		mu.Lock()
		calls++
		mu.Unlock()
		entered <- struct{}{}
		<-release
		return false
	})
	f.SelectFile(context.Background(), csvBlob())
	f.SetName("foo")
	profiled := p.callCount()

	done := make(chan struct{})
	go func() {
		_, _ = f.Submit(context.Background())
		close(done)
	}()
	<-entered

	other := models.BlobFromBytes("other.csv", []byte("x\n1\n"))
	assert.False(t, f.SelectFile(context.Background(), other))
	assert.False(t, f.Profile(context.Background()))
	assert.Equal(t, profiled, p.callCount(), "no profiling while submitting")

	v := f.View()
	assert.True(t, v.Submitting)
	assert.Equal(t, "submitting", v.State)
	assert.Equal(t, "data.csv", v.FileName)

	_, err := f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInProgress)

	close(release)
	<-done
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
	assert.False(t, f.View().Submitting)
	assert.Equal(t, "submit-error", f.State().Name())
}

func TestProfile_Failure(t *testing.T) {
	p := &fakeProfiler{responders: []responder{
		func(models.ProfileRequest) (*models.ProfileData, error) {
			return nil, errors.New("Error 500: Internal Server Error")
		},
		twoColumns("col"),
	}}
	f := NewForm(ModeUpload, p, nil)
	f.SetName("ds")

	assert.False(t, f.SelectFile(context.Background(), csvBlob()))
	v := f.View()
	assert.Equal(t, models.ProfilingError, v.ProfilingStatus)
	assert.Equal(t, "Error 500: Internal Server Error", v.FailedProfiler)
	assert.Equal(t, ProfileFailed{Message: "Error 500: Internal Server Error"}, f.State())

	// Retrying the triggering action recovers.
	assert.True(t, f.SelectFile(context.Background(), csvBlob()))
	v = f.View()
	assert.Equal(t, models.ProfilingSucceeded, v.ProfilingStatus)
	assert.Empty(t, v.FailedProfiler)
}

func TestProfile_RequestFollowsMode(t *testing.T) {
	p := &fakeProfiler{}
	f := NewForm(ModeURL, p, nil)
	f.SetName("ds")

	assert.False(t, f.Profile(context.Background()), "nothing to profile")
	assert.Equal(t, 0, p.callCount())

	f.SetAddress("http://x/y.csv")
	assert.True(t, f.Profile(context.Background()))
	require.Equal(t, 1, p.callCount())
	assert.Equal(t, models.ProfileRequest{Address: "http://x/y.csv", Name: "ds"}, p.calls[0])
}

func TestProfile_StaleResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	p := &fakeProfiler{responders: []responder{
		func(req models.ProfileRequest) (*models.ProfileData, error) {
			<-release
			return twoColumns("old")(req)
		},
		twoColumns("new"),
	}}
	f := NewForm(ModeUpload, p, nil)
	f.SetName("ds")

	first := make(chan bool)
	go func() {
		first <- f.SelectFile(context.Background(), models.BlobFromBytes("first.csv", []byte("a\n1\n")))
	}()
	require.Eventually(t, func() bool { return p.callCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.ProfilingRunning, f.ProfilingStatus())

	require.True(t, f.SelectFile(context.Background(), models.BlobFromBytes("second.csv", []byte("b\n2\n"))))
	close(release)
	assert.False(t, <-first)

	v := f.View()
	assert.Equal(t, models.ProfilingSucceeded, v.ProfilingStatus)
	require.Len(t, v.Profile.Columns, 2)
	assert.Equal(t, "newA", v.Profile.Columns[0].Name)
	assert.Equal(t, "second.csv", v.FileName)
}

func TestProfile_NewProfileClearsEditedColumns(t *testing.T) {
	p := &fakeProfiler{responders: []responder{twoColumns("col"), twoColumns("other")}}
	f := NewForm(ModeUpload, p, nil)
	require.True(t, f.SelectFile(context.Background(), csvBlob()))
	require.NoError(t, f.UpdateColumnType("Text", "colA"))

	require.True(t, f.SelectFile(context.Background(), csvBlob()))
	v := f.View()
	assert.Empty(t, v.ColumnsName)
	for _, name := range v.ColumnsName {
		assert.True(t, v.Profile.HasColumn(name))
	}
}

func TestView_DoesNotAliasProfile(t *testing.T) {
	p := &fakeProfiler{responders: []responder{twoColumns("col")}}
	f := NewForm(ModeUpload, p, nil)
	require.True(t, f.SelectFile(context.Background(), csvBlob()))

	v := f.View()
	v.Profile.Columns[0].StructuralType = "mutated"
	assert.Equal(t, models.TypeInteger, f.View().Profile.Columns[0].StructuralType)
}
