package controlplane

import "errors"

// Sentinel errors for control plane operations.
var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTraceNotFound = errors.New("trace not found")
)
