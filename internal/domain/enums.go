package domain

// JobStatus is the provider-declared state of a batch job.
type JobStatus string

const (
	JobStatusValidating JobStatus = "validating"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusFinalizing JobStatus = "finalizing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusExpired    JobStatus = "expired"
	JobStatusCancelling JobStatus = "cancelling"
	JobStatusCancelled  JobStatus = "cancelled"
)

// knownStatuses maps every status the provider documents to whether it is terminal.
var knownStatuses = map[JobStatus]bool{
	JobStatusValidating: false,
	JobStatusInProgress: false,
	JobStatusFinalizing: false,
	JobStatusCancelling: false,
	JobStatusCompleted:  true,
	JobStatusFailed:     true,
	JobStatusExpired:    true,
	JobStatusCancelled:  true,
}

// IsTerminal reports whether no further transition can occur from s.
// Statuses the provider has not documented are treated as non-terminal.
func (s JobStatus) IsTerminal() bool {
	return knownStatuses[s]
}

// IsKnown reports whether s is one of the documented provider statuses.
func (s JobStatus) IsKnown() bool {
	_, ok := knownStatuses[s]
	return ok
}

// Phase groups a status for display: processing, succeeded, failed, or unknown.
func (s JobStatus) Phase() JobPhase {
	switch s {
	case JobStatusValidating, JobStatusInProgress, JobStatusFinalizing, JobStatusCancelling:
		return JobPhaseProcessing
	case JobStatusCompleted:
		return JobPhaseSucceeded
	case JobStatusFailed, JobStatusExpired, JobStatusCancelled:
		return JobPhaseFailed
	default:
		return JobPhaseUnknown
	}
}

// JobPhase is a coarse grouping of JobStatus used by presentation layers.
type JobPhase string

const (
	JobPhaseProcessing JobPhase = "processing"
	JobPhaseSucceeded  JobPhase = "succeeded"
	JobPhaseFailed     JobPhase = "failed"
	JobPhaseUnknown    JobPhase = "unknown"
)

// Message roles used in compiled chat-completion requests.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)
