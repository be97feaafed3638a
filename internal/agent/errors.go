package agent

import "errors"

var (
	// ErrNoResponse wraps every collaborator failure that aborts a run.
	ErrNoResponse = errors.New("failed to get LLM response")
	// ErrAlreadyRun is returned by a second Run on the same Runtime.
	ErrAlreadyRun = errors.New("runtime already ran")
)
