// Package exitcodes contains the process exit codes of the httpls binaries.
package exitcodes

// ExitCode is a process exit code.
type ExitCode uint8

const (
	InvalidConfig ExitCode = 104
	CannotListen  ExitCode = 106
	ServeFailed   ExitCode = 107
)
