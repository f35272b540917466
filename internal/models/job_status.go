package models

/*
Job status and remote state constants for use throughout the codebase.
Centralizing these avoids magic strings in the ledger and the monitor.
*/

// JobStatus is the client-side cache of a batch job's state as kept in the ledger.
type JobStatus string

// Job status constants (persisted, do not rename)
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// RemoteState is the normalized state reported by the batch service.
type RemoteState string

// Remote state constants
const (
	RemoteStateUnknown   RemoteState = "unknown"
	RemoteStatePending   RemoteState = "pending"
	RemoteStateRunning   RemoteState = "running"
	RemoteStateSucceeded RemoteState = "succeeded"
	RemoteStateFailed    RemoteState = "failed"
	RemoteStateCancelled RemoteState = "cancelled"
	RemoteStateExpired   RemoteState = "expired"
)

// Task name constants for the scheduler.
const (
	TaskAgentsCycle = "agents:cycle"
)
