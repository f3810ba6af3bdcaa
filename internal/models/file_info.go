package models

import "time"

// FileInfo represents metadata about a stored dataset file.
type FileInfo struct {
	ID         string    `json:"id" msgpack:"id"`
	Key        string    `json:"key" msgpack:"key"`
	Name       string    `json:"name" msgpack:"name"`
	DatasetID  string    `json:"datasetId,omitempty" msgpack:"dataset_id"`
	Tags       []string  `json:"tags,omitempty" msgpack:"tags"`
	Size       int64     `json:"size" msgpack:"size"`
	UploadedAt time.Time `json:"uploadedAt" msgpack:"uploaded_at"`
	Status     string    `json:"status" msgpack:"status"` // "allocated", "stored"
}

const (
	FileStatusAllocated = "allocated"
	FileStatusStored    = "stored"
)
