package probe

import "errors"

// ExitCode is the process exit status a run maps to
type ExitCode int

const (
	ExitOK           ExitCode = 0
	ExitChecksFailed ExitCode = 1
	ExitFatal        ExitCode = 2
)

// HasExitCode is an error that knows which exit status it should produce
type HasExitCode interface {
	error
	ExitCode() ExitCode
}

// Policy decides whether failed checks fail the run
type Policy int

const (
	// Strict exits 1 when any check did not pass.
	Strict Policy = iota
	// Lenient never lets a missing element change the exit status.
	Lenient
)

// PolicyFor maps the config's strict flag to a Policy
func PolicyFor(strict bool) Policy {
	if strict {
		return Strict
	}
	return Lenient
}

// ExitCodeFor maps a run outcome to a process exit status
func ExitCodeFor(report *Report, err error, policy Policy) ExitCode {
	if err != nil {
		var ec HasExitCode
		if errors.As(err, &ec) {
			return ec.ExitCode()
		}
		return ExitFatal
	}
	if policy == Strict && report != nil && !report.AllPassed() {
		return ExitChecksFailed
	}
	return ExitOK
}
