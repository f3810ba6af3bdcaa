package form

import (
	"fmt"
	"io"

	"github.com/datamart/webapp/internal/models"
)

type groupLines struct {
	group Group
	lines []string
}

// Render writes a text rendition of the form.
func Render(w io.Writer, v View) error {
	var groups []groupLines
	add := func(g Group, lines ...string) {
		groups = append(groups, groupLines{g, lines})
	}

	switch v.Mode {
	case ModeUpload:
		add(Group{For: "upload-file", Label: "CSV file"},
			withError(orPlaceholder(v.FileName, "(no file selected)"), v.Validation.Errors.File)...)
	case ModeURL:
		add(Group{For: "url-address", Label: "URL to CSV file"},
			withError(orPlaceholder(v.Address, "(type a URL that points to a CSV file)"), v.Validation.Errors.Address)...)
	}
	add(Group{For: "upload-name", Label: "Name"},
		withError(orPlaceholder(v.Name, "(type the name of the dataset)"), v.Validation.Errors.Name)...)
	add(Group{For: "upload-description", Label: "Description:"},
		orPlaceholder(v.Description, "(type the dataset description)"))

	if v.ProfilingStatus != models.ProfilingStopped && v.Mode == ModeUpload && v.HasFile {
		add(Group{For: "upload-sample", Label: "Dataset Sample"}, profileLines(v)...)
	}

	submit := "[ Upload ]"
	if v.Submitting {
		submit = "[ Uploading... ]"
	}
	add(Group{}, submit)

	for _, g := range groups {
		if err := g.group.Render(w, g.lines...); err != nil {
			return err
		}
	}
	return nil
}

func orPlaceholder(value, placeholder string) string {
	if value == "" {
		return placeholder
	}
	return value
}

func withError(line, msg string) []string {
	if msg == "" {
		return []string{line}
	}
	return []string{line, "! " + msg}
}

func profileLines(v View) []string {
	switch v.ProfilingStatus {
	case models.ProfilingRunning:
		return []string{"Profiling dataset..."}
	case models.ProfilingError:
		return []string{"Error profiling dataset: " + v.FailedProfiler}
	}
	if v.Profile == nil || len(v.Profile.Columns) == 0 {
		return []string{"No columns found"}
	}

	edited := make(map[string]struct{}, len(v.ColumnsName))
	for _, name := range v.ColumnsName {
		edited[name] = struct{}{}
	}
	lines := make([]string, 0, len(v.Profile.Columns))
	for _, col := range v.Profile.Columns {
		line := fmt.Sprintf("%s: %s", col.Name, col.StructuralType)
		if _, ok := edited[col.Name]; ok {
			line += " (edited)"
		}
		lines = append(lines, line)
	}
	return lines
}

// RenderPage writes the page heading, the outcome banner, the tabs and the form.
func RenderPage(w io.Writer, p *Page) error {
	if _, err := io.WriteString(w, "Upload a new dataset\n\n"); err != nil {
		return err
	}
	if b := p.Banner(); b.Kind != BannerNone {
		if _, err := fmt.Fprintf(w, "%s\n\n", b.Message); err != nil {
			return err
		}
	}
	upload, url := " Upload ", " Direct URL "
	if p.Mode() == ModeUpload {
		upload = "[Upload]"
	} else {
		url = "[Direct URL]"
	}
	if _, err := fmt.Fprintf(w, "%s %s\n\n", upload, url); err != nil {
		return err
	}
	return Render(w, p.Form().View())
}
