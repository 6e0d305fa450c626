package model

// LoadStatus tells a consumer why a result looks the way it does.
type LoadStatus string

const (
	LoadStatusOK       LoadStatus = "ok"
	LoadStatusEmpty    LoadStatus = "empty"    // every source answered, nothing matched
	LoadStatusDegraded LoadStatus = "degraded" // some source failed, data from the rest
	LoadStatusFailed   LoadStatus = "failed"   // no data because fetches failed
)

// SourceReport is the outcome of a single fetch step.
type SourceReport struct {
	Name   string     `json:"name"`
	Status LoadStatus `json:"status"`
	Rows   int        `json:"rows"`
	Err    string     `json:"error,omitempty"`
}

// Failed reports whether the step produced no data because of an error.
func (r SourceReport) Failed() bool {
	return r.Status == LoadStatusFailed
}

// CombineStatus folds per-source reports and the final row count into one
// status for the whole load.
func CombineStatus(rows int, reports ...SourceReport) LoadStatus {
	failed := 0
	for _, r := range reports {
		if r.Status == LoadStatusFailed || r.Status == LoadStatusDegraded {
			failed++
		}
	}
	switch {
	case failed == 0 && rows == 0:
		return LoadStatusEmpty
	case failed == 0:
		return LoadStatusOK
	case rows == 0 && failed == len(reports):
		return LoadStatusFailed
	default:
		return LoadStatusDegraded
	}
}
