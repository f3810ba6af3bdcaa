// Package status renders the coordinator status report and keeps it fresh.
package status

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/datamart/webapp/internal/models"
)

// Section is one titled list of the dashboard.
type Section struct {
	Title string
	Items []string
}

const (
	TitleDiscoverers = "Discoverers"
	TitleIngesters   = "Ingesters"
	TitleRecent      = "Recent discoveries"
	TitleStorage     = "Storage"
	TitleSources     = "Sources"

	EmptyDiscoverers = "No discoverer connected"
	EmptyIngesters   = "No ingester connected"
	EmptyRecent      = "No recent discoveries"
	EmptyStorage     = "No dataset in local storage"
	EmptySources     = "No dataset discovered"
)

func workerItems(workers []models.Worker, empty string) []string {
	if len(workers) == 0 {
		return []string{empty}
	}
	items := make([]string, 0, len(workers))
	for _, w := range workers {
		items = append(items, fmt.Sprintf("%s (%s)", w.Name, w.Info))
	}
	return items
}

// Render turns a report into the four dashboard sections. A nil report renders
// every section empty.
func Render(report *models.StatusReport) []Section {
	if report == nil {
		report = &models.StatusReport{}
	}

	recent := make([]string, 0, len(report.RecentDiscoveries))
	for _, d := range report.RecentDiscoveries {
		recent = append(recent, fmt.Sprintf("%s (%s)", d.DatasetID, d.Timestamp))
	}
	if len(recent) == 0 {
		recent = []string{EmptyRecent}
	}

	keys := make([]string, 0, len(report.Storage))
	for k := range report.Storage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	storage := make([]string, 0, len(keys))
	for _, k := range keys {
		entry := report.Storage[k]
		if entry == nil {
			storage = append(storage, k+" (allocated)")
			continue
		}
		storage = append(storage, fmt.Sprintf("%s %s %s", k, entry.DatasetID, strings.Join(entry.Tags, ", ")))
	}
	if len(storage) == 0 {
		storage = []string{EmptyStorage}
	}

	return []Section{
		{Title: TitleDiscoverers, Items: workerItems(report.Discoverers, EmptyDiscoverers)},
		{Title: TitleIngesters, Items: workerItems(report.Ingesters, EmptyIngesters)},
		{Title: TitleRecent, Items: recent},
		{Title: TitleStorage, Items: storage},
	}
}

// RenderSources lists the per-source dataset counts, sorted by source.
func RenderSources(stats *models.Statistics) Section {
	sec := Section{Title: TitleSources}
	if stats == nil || len(stats.SourcesCounts) == 0 {
		sec.Items = []string{EmptySources}
		return sec
	}
	sources := make([]string, 0, len(stats.SourcesCounts))
	for k := range stats.SourcesCounts {
		sources = append(sources, k)
	}
	sort.Strings(sources)
	for _, k := range sources {
		sec.Items = append(sec.Items, fmt.Sprintf("%s: %d", k, stats.SourcesCounts[k]))
	}
	return sec
}

// WriteText writes sections as plain text, one "- item" per line.
func WriteText(w io.Writer, sections []Section) error {
	for i, s := range sections {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s\n", s.Title); err != nil {
			return err
		}
		for _, item := range s.Items {
			if _, err := fmt.Fprintf(w, "  - %s\n", strings.TrimRight(item, " ")); err != nil {
				return err
			}
		}
	}
	return nil
}
