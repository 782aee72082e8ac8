package config

type JobStatus string

var (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"

	AllowedStatuses = []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed}
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether the lifecycle allows moving from s to next.
// pending -> processing -> (completed | failed). complete and fail are also
// accepted straight from pending.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next.Terminal()
	case JobStatusProcessing:
		return next.Terminal()
	}
	return false
}

// SourcesOf lists the statuses from which next may be entered, in lifecycle
// order. Stores use it to guard their conditional updates.
func SourcesOf(next JobStatus) []string {
	var out []string
	for _, s := range AllowedStatuses {
		if s.CanTransition(next) {
			out = append(out, string(s))
		}
	}
	return out
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverRedis    = "redis"
)
