package domain

// Status is the lifecycle state of a job.
type Status string

// Job statuses.
const (
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCanceled  Status = "CANCELED"
	StatusSkipped   Status = "SKIPPED"
	StatusAbandoned Status = "ABANDONED"
)

var jobTransitions = map[Status][]Status{
	StatusSubmitted: {StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCanceled, StatusSkipped, StatusAbandoned},
	StatusPending:   {StatusSubmitted, StatusRunning, StatusCompleted, StatusFailed, StatusCanceled, StatusSkipped, StatusAbandoned},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCanceled},
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled, StatusSkipped, StatusAbandoned:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusRunning:
		return true
	default:
		return s.IsTerminal()
	}
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range jobTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// SubmissionStatus summarizes the jobs of one submission.
type SubmissionStatus string

// Submission statuses.
const (
	SubmissionSubmitted SubmissionStatus = "SUBMITTED"
	SubmissionPending   SubmissionStatus = "PENDING"
	SubmissionRunning   SubmissionStatus = "RUNNING"
	SubmissionCompleted SubmissionStatus = "COMPLETED"
	SubmissionFailed    SubmissionStatus = "FAILED"
	SubmissionCanceled  SubmissionStatus = "CANCELED"
)

// DeriveSubmissionStatus folds job statuses into a submission status.
// Failure wins over cancellation, which wins over activity.
func DeriveSubmissionStatus(statuses []Status) SubmissionStatus {
	if len(statuses) == 0 {
		return SubmissionSubmitted
	}
	var canceled, running, pending bool
	for _, s := range statuses {
		switch s {
		case StatusFailed:
			return SubmissionFailed
		case StatusCanceled, StatusAbandoned:
			canceled = true
		case StatusRunning:
			running = true
		case StatusPending, StatusSubmitted:
			pending = true
		}
	}
	switch {
	case canceled:
		return SubmissionCanceled
	case running:
		return SubmissionRunning
	case pending:
		return SubmissionPending
	default:
		return SubmissionCompleted
	}
}
