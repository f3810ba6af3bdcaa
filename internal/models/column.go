package models

import (
	"encoding/json"
	"strings"
)

// SchemaOrg is the namespace used for structural and semantic type URIs.
const SchemaOrg = "http://schema.org/"

// Structural types assigned by the profiler.
const (
	TypeInteger  = SchemaOrg + "Integer"
	TypeFloat    = SchemaOrg + "Float"
	TypeText     = SchemaOrg + "Text"
	TypeBoolean  = SchemaOrg + "Boolean"
	TypeDateTime = SchemaOrg + "DateTime"
)

// TypeURI turns a bare type name ("Text") into its schema.org URI.
// Values that already look like a URI are returned unchanged.
func TypeURI(value string) string {
	if strings.Contains(value, "://") {
		return value
	}
	return SchemaOrg + value
}

// ColumnMetadata describes one column of a profiled dataset.
// Fields the workflow does not know about are kept in Extra and written back as-is.
type ColumnMetadata struct {
	Name               string                     `json:"name"`
	StructuralType     string                     `json:"structural_type"`
	SemanticTypes      []string                   `json:"semantic_types,omitempty"`
	MissingValuesRatio *float64                   `json:"missing_values_ratio,omitempty"`
	Mean               *float64                   `json:"mean,omitempty"`
	Stddev             *float64                   `json:"stddev,omitempty"`
	Extra              map[string]json.RawMessage `json:"-"`
}

var knownColumnFields = map[string]struct{}{
	"name":                 {},
	"structural_type":      {},
	"semantic_types":       {},
	"missing_values_ratio": {},
	"mean":                 {},
	"stddev":               {},
}

// columnFields avoids recursing into ColumnMetadata's own (Un)MarshalJSON.
type columnFields ColumnMetadata

func (c ColumnMetadata) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(columnFields(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(c.Extra)+len(knownColumnFields))
	for k, v := range c.Extra {
		if _, ok := knownColumnFields[k]; ok {
			continue
		}
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (c *ColumnMetadata) UnmarshalJSON(data []byte) error {
	var fields columnFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range knownColumnFields {
		delete(all, k)
	}
	*c = ColumnMetadata(fields)
	if len(all) > 0 {
		c.Extra = all
	} else {
		c.Extra = nil
	}
	return nil
}

// Clone returns a deep copy of the column.
func (c ColumnMetadata) Clone() ColumnMetadata {
	out := c
	if c.SemanticTypes != nil {
		out.SemanticTypes = append([]string(nil), c.SemanticTypes...)
	}
	out.MissingValuesRatio = cloneFloat(c.MissingValuesRatio)
	out.Mean = cloneFloat(c.Mean)
	out.Stddev = cloneFloat(c.Stddev)
	if c.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
