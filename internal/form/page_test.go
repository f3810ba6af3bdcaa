package form

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/datamart/webapp/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	err   error
	calls []models.UploadData
}

func (u *fakeUploader) Upload(_ context.Context, data models.UploadData) error {
	u.calls = append(u.calls, data)
	return u.err
}

func TestPage_SubmitOutcome(t *testing.T) {
	tests := []struct {
		name       string
		uploadErr  error
		wantKind   BannerKind
		wantBanner string
		wantReset  bool
	}{
		{
			name:       "success",
			wantKind:   BannerSuccess,
			wantBanner: "File submitted successfully.",
			wantReset:  true,
		},
		{
			name:       "server error",
			uploadErr:  errors.New("Error 500: Internal Server Error"),
			wantKind:   BannerFailure,
			wantBanner: "Unexpected error: failed to submit dataset (Error 500: Internal Server Error).",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUploader{err: tt.uploadErr}
			page := NewPage(up, &fakeProfiler{})
			page.SetMode(ModeURL)
			f := page.Form()
			f.SetAddress("http://x/y.csv")
			f.SetName("foo")

			ok, err := f.Submit(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantReset, ok)
			assert.Len(t, up.calls, 1)

			b := page.Banner()
			assert.Equal(t, tt.wantKind, b.Kind)
			assert.Equal(t, tt.wantBanner, b.Message)

			if tt.wantReset {
				assert.Empty(t, f.View().Name)
			} else {
				assert.Equal(t, "foo", f.View().Name)
			}
		})
	}
}

func TestPage_BannerFollowsLatestOutcome(t *testing.T) {
	up := &fakeUploader{err: errors.New("boom")}
	page := NewPage(up, &fakeProfiler{})
	assert.Equal(t, BannerNone, page.Banner().Kind)

	assert.False(t, page.OnFormSubmit(context.Background(), models.UploadData{Name: "a"}))
	assert.Equal(t, BannerFailure, page.Banner().Kind)

	up.err = nil
	assert.True(t, page.OnFormSubmit(context.Background(), models.UploadData{Name: "a"}))
	assert.Equal(t, BannerSuccess, page.Banner().Kind)
}

func TestPage_SetModeForwardsToForm(t *testing.T) {
	page := NewPage(&fakeUploader{}, &fakeProfiler{})
	assert.Equal(t, ModeUpload, page.Mode())

	page.SetMode(ModeURL)
	assert.Equal(t, ModeURL, page.Mode())
	assert.Equal(t, ModeURL, page.Form().View().Mode)
}

func TestGroup_Render(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Group{For: "upload-name", Label: "Name"}.Render(&buf, "foo", "! Name is required"))
	require.NoError(t, Group{}.Render(&buf, "[ Upload ]"))

	want := "Name                 foo\n" +
		"                     ! Name is required\n" +
		"                     [ Upload ]\n"
	assert.Equal(t, want, buf.String())
}

func TestRender_SampleVisibility(t *testing.T) {
	p := &fakeProfiler{responders: []responder{twoColumns("col")}}
	f := NewForm(ModeUpload, p, nil)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, f.View()))
	assert.NotContains(t, buf.String(), "Dataset Sample")
	assert.Contains(t, buf.String(), "(no file selected)")

	require.True(t, f.SelectFile(context.Background(), csvBlob()))
	require.NoError(t, f.UpdateColumnType("Text", "colA"))
	buf.Reset()
	require.NoError(t, Render(&buf, f.View()))
	out := buf.String()
	assert.Contains(t, out, "Dataset Sample")
	assert.Contains(t, out, "colA: http://schema.org/Text (edited)")
	assert.Contains(t, out, "colB: http://schema.org/Float\n")

	// The sample belongs to the upload tab only.
	f.SetMode(ModeURL)
	buf.Reset()
	require.NoError(t, Render(&buf, f.View()))
	assert.NotContains(t, buf.String(), "Dataset Sample")
	assert.Contains(t, buf.String(), "URL to CSV file")
}

func TestRender_FieldErrors(t *testing.T) {
	f := NewForm(ModeUpload, &fakeProfiler{}, nil)
	_, err := f.Submit(context.Background())
	require.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, f.View()))
	assert.Contains(t, buf.String(), "! File is required")
	assert.Contains(t, buf.String(), "! Name is required")
}

func TestRenderPage(t *testing.T) {
	page := NewPage(&fakeUploader{}, &fakeProfiler{})
	assert.True(t, page.OnFormSubmit(context.Background(), models.UploadData{Name: "a"}))

	var buf bytes.Buffer
	require.NoError(t, RenderPage(&buf, page))
	out := buf.String()
	assert.Contains(t, out, "Upload a new dataset")
	assert.Contains(t, out, "File submitted successfully.")
	assert.Contains(t, out, "[Upload]  Direct URL ")
}
