package form

import "github.com/datamart/webapp/internal/models"

// State is the single tagged state of an upload form session.
type State interface {
	Name() string
	isState()
}

// Idle is the initial state, and the state after a successful submission.
type Idle struct{}

// Profiling waits for the profile request of the given generation.
type Profiling struct {
	Generation uint64
}

// Profiled holds a usable profile.
type Profiled struct{}

// ProfileFailed carries the message of the last failed profiling call.
type ProfileFailed struct {
	Message string
}

// Invalid is entered when a submit attempt fails validation.
type Invalid struct {
	Validation Validation
}

// Submitting waits for the upload call. ProfilingStatus is the status the
// form showed when the submission started.
type Submitting struct {
	ProfilingStatus models.ProfilingStatus
}

// SubmitFailed is entered when the upload call reported a failure.
type SubmitFailed struct{}

func (Idle) Name() string          { return "idle" }
func (Profiling) Name() string     { return "profiling" }
func (Profiled) Name() string      { return "profiled" }
func (ProfileFailed) Name() string { return "profile-error" }
func (Invalid) Name() string       { return "invalid" }
func (Submitting) Name() string    { return "submitting" }
func (SubmitFailed) Name() string  { return "submit-error" }

func (Idle) isState()          {}
func (Profiling) isState()     {}
func (Profiled) isState()      {}
func (ProfileFailed) isState() {}
func (Invalid) isState()       {}
func (Submitting) isState()    {}
func (SubmitFailed) isState()  {}

// profilingStatus projects a state onto the profiling lifecycle shown to users.
func profilingStatus(s State) models.ProfilingStatus {
	switch s := s.(type) {
	case Profiling:
		return models.ProfilingRunning
	case Profiled:
		return models.ProfilingSucceeded
	case ProfileFailed:
		return models.ProfilingError
	case Submitting:
		return s.ProfilingStatus
	}
	return models.ProfilingStopped
}
