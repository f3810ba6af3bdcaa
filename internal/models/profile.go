package models

// ProfilingStatus is the lifecycle state of an asynchronous profiling call.
type ProfilingStatus string

const (
	ProfilingStopped   ProfilingStatus = "STOPPED"
	ProfilingRunning   ProfilingStatus = "RUNNING"
	ProfilingSucceeded ProfilingStatus = "SUCCESSED"
	ProfilingError     ProfilingStatus = "ERROR"
)

// Dataset types derived from the column types.
const (
	DatasetNumerical   = "numerical"
	DatasetTemporal    = "temporal"
	DatasetCategorical = "categorical"
)

// ProfileData is the server's best-effort inference of the columns of a dataset.
type ProfileData struct {
	Columns   []ColumnMetadata `json:"columns"`
	NbRows    int64            `json:"nb_rows,omitempty"`
	NbColumns int              `json:"nb_columns,omitempty"`
	Size      int64            `json:"size,omitempty"`
	Types     []string         `json:"types,omitempty"`
	Sample    string           `json:"sample,omitempty"`
}

// Clone returns a deep copy so that edits never alias a received profile.
func (p *ProfileData) Clone() *ProfileData {
	if p == nil {
		return nil
	}
	out := &ProfileData{NbRows: p.NbRows, NbColumns: p.NbColumns, Size: p.Size, Sample: p.Sample}
	if p.Types != nil {
		out.Types = append([]string(nil), p.Types...)
	}
	out.Columns = make([]ColumnMetadata, len(p.Columns))
	for i, c := range p.Columns {
		out.Columns[i] = c.Clone()
	}
	return out
}

// HasColumn reports whether a column with the given name was profiled.
func (p *ProfileData) HasColumn(name string) bool {
	if p == nil {
		return false
	}
	for _, c := range p.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// UpdatedColumns is the payload serialized into UploadData.UpdatedColumns.
type UpdatedColumns struct {
	Columns []ColumnMetadata `json:"columns"`
}
