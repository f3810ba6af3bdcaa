// Package web provides the embedded server-rendered status page.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"sort"

	"github.com/datamart/webapp/internal/models"
	"github.com/datamart/webapp/internal/status"
	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFiles embed.FS

// DashboardTemplate is the name of the status page template.
const DashboardTemplate = "index.html"

// SourceCount is one row of the per-source table.
type SourceCount struct {
	Name  string
	Count int
}

// Dashboard is the data rendered by the status page.
type Dashboard struct {
	Sections       []status.Section
	Sources        []SourceCount
	RefreshSeconds int
}

// NewDashboard builds the page data from the coordinator state.
func NewDashboard(report *models.StatusReport, stats *models.Statistics, refreshSeconds int) Dashboard {
	d := Dashboard{
		Sections:       status.Render(report),
		RefreshSeconds: refreshSeconds,
	}
	if stats != nil {
		for name, count := range stats.SourcesCounts {
			d.Sources = append(d.Sources, SourceCount{Name: name, Count: count})
		}
		sort.Slice(d.Sources, func(i, j int) bool { return d.Sources[i].Name < d.Sources[j].Name })
	}
	return d
}

// Renderer implements echo.Renderer over the embedded templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	t, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Renderer{templates: t}, nil
}

// Render executes the named template.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}
