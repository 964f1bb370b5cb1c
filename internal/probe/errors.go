package probe

import (
	"errors"
	"fmt"
)

// Infrastructure failures. Any of these aborts the run and is wrapped in a
// *FatalError; match them with errors.Is.
var (
	ErrBrowserLaunch     = errors.New("browser launch failed")
	ErrConnection        = errors.New("target unreachable")
	ErrNavigationTimeout = errors.New("navigation timeout")
	ErrCapture           = errors.New("screenshot capture failed")
	ErrArtifactWrite     = errors.New("screenshot write failed")
)

// Stage identifies the step of a run that failed
type Stage string

const (
	StageLaunch      Stage = "launch"
	StageNavigate    Stage = "navigate"
	StageNetworkIdle Stage = "network-idle"
	StageScreenshot  Stage = "screenshot"
)

// FatalError is returned by Run when the sequence could not complete
type FatalError struct {
	Stage Stage
	Kind  error // one of the Err* sentinels, or a context error
	Err   error
}

func (e *FatalError) Error() string {
	if e.Err == nil || e.Err == e.Kind {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *FatalError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// ExitCode implements HasExitCode
func (e *FatalError) ExitCode() ExitCode {
	return ExitFatal
}

func fatal(stage Stage, kind, err error) *FatalError {
	return &FatalError{Stage: stage, Kind: kind, Err: err}
}
