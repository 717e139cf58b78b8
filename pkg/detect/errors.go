package detect

import "fmt"

// Collect error codes recorded in meta.json.
const (
	CodeInvalidURL      = "INVALID_URL"
	CodeDomainBlocked   = "DOMAIN_BLOCKED"
	CodeLaunchError     = "LAUNCH_ERROR"
	CodeNavTimeout      = "NAV_TIMEOUT"
	CodeNavError        = "NAV_ERROR"
	CodeUnexpectedError = "UNEXPECTED_ERROR"
)

// Stages of a collection run.
const (
	StageInit     = "init"
	StageLaunch   = "launch"
	StageNavigate = "navigate"
	StageCollect  = "collect"
)

// CollectError is a fatal collection failure. OutDir is the run directory
// that holds the failed meta.json, when one was created.
type CollectError struct {
	Code    string
	Stage   string
	Message string
	OutDir  string
	Err     error
}

func (e *CollectError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Code, e.Stage, e.Message)
}

func (e *CollectError) Unwrap() error { return e.Err }

func newCollectError(code, stage string, err error) *CollectError {
	ce := &CollectError{Code: code, Stage: stage, Err: err}
	if err != nil {
		ce.Message = err.Error()
	}
	return ce
}
