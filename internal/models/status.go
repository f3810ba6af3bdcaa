package models

import (
	"encoding/json"
	"fmt"
)

// Worker is a connected discoverer or ingester, encoded as [name, info].
type Worker struct {
	Name string
	Info string
}

func (w Worker) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{w.Name, w.Info})
}

func (w *Worker) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	w.Name, w.Info = pair[0], pair[1]
	return nil
}

// Discovery is a recently discovered dataset, encoded as [dataset_id, timestamp].
type Discovery struct {
	DatasetID string
	Timestamp string
}

func (d Discovery) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{d.DatasetID, d.Timestamp})
}

func (d *Discovery) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	d.DatasetID, d.Timestamp = pair[0], pair[1]
	return nil
}

// StorageEntry is a dataset held in local storage, encoded as [dataset_id, tags].
// A nil *StorageEntry in StatusReport.Storage means the slot is allocated but not filled yet.
type StorageEntry struct {
	DatasetID string
	Tags      []string
}

func (s StorageEntry) MarshalJSON() ([]byte, error) {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal([]any{s.DatasetID, tags})
}

func (s *StorageEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("storage entry: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("storage entry: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &s.DatasetID); err != nil {
		return fmt.Errorf("storage entry id: %w", err)
	}
	if err := json.Unmarshal(pair[1], &s.Tags); err != nil {
		return fmt.Errorf("storage entry tags: %w", err)
	}
	return nil
}

// StatusReport is the payload of GET /status.
type StatusReport struct {
	Discoverers       []Worker                 `json:"discoverers"`
	Ingesters         []Worker                 `json:"ingesters"`
	RecentDiscoveries []Discovery              `json:"recent_discoveries"`
	Storage           map[string]*StorageEntry `json:"storage"`
}

// Statistics is the payload of GET /api/statistics.
type Statistics struct {
	RecentDiscoveries []Discovery    `json:"recent_discoveries"`
	SourcesCounts     map[string]int `json:"sources_counts"`
}
