package form

import (
	"errors"

	"github.com/hashicorp/go-multierror"
)

// Mode selects which input carries the dataset.
type Mode string

const (
	ModeUpload Mode = "upload"
	ModeURL    Mode = "url"
)

// Field error messages shown under their inputs.
const (
	MsgFileRequired = "File is required"
	MsgURLRequired  = "URL is required"
	MsgNameRequired = "Name is required"
)

// FieldErrors holds one message per invalid field; empty means valid.
type FieldErrors struct {
	File    string `json:"file,omitempty"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// Validation is the result of a validation pass. It is derived, never persisted.
type Validation struct {
	Valid  bool        `json:"valid"`
	Errors FieldErrors `json:"errors"`
}

// Err aggregates the field errors, or returns nil when the form is valid.
func (v Validation) Err() error {
	var result *multierror.Error
	for _, msg := range []string{v.Errors.File, v.Errors.Address, v.Errors.Name} {
		if msg != "" {
			result = multierror.Append(result, errors.New(msg))
		}
	}
	return result.ErrorOrNil()
}

// Input is the part of the form state validation looks at.
type Input struct {
	Mode    Mode
	HasFile bool
	Address string
	Name    string
}

// Validate checks the required fields for the active mode.
func Validate(in Input) Validation {
	var errs FieldErrors
	if in.Mode == ModeUpload && !in.HasFile {
		errs.File = MsgFileRequired
	}
	if in.Mode == ModeURL && in.Address == "" {
		errs.Address = MsgURLRequired
	}
	if in.Name == "" {
		errs.Name = MsgNameRequired
	}
	return Validation{
		Valid:  errs == FieldErrors{},
		Errors: errs,
	}
}
