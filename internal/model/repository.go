package model

// Repository is the durable record of one upstream repository. FirstIssue
// and LastIssue are nullable and derived at scan time from the observed
// non-pull-request issue range; LastIssue is monotonically non-decreasing
// across updates from the same scan lineage (spec §3, §4.4).
type Repository struct {
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	ID         int64  `json:"id"`
	FirstIssue *int   `json:"firstIssue"`
	LastIssue  *int   `json:"lastIssue"`
}

// MergeRange folds a freshly observed [min,max] non-PR issue range into r,
// enforcing the monotonicity invariant: LastIssue never regresses. FirstIssue
// also never regresses upward — once set, only a strictly smaller observed
// minimum (an unusual but legal re-scan artifact) can refine it downward. The
// receiver is mutated and returned for chaining convenience.
func (r *Repository) MergeRange(observedMin, observedMax int, haveAny bool) *Repository {
	if !haveAny {
		return r
	}
	if r.FirstIssue == nil || observedMin < *r.FirstIssue {
		v := observedMin
		r.FirstIssue = &v
	}
	if r.LastIssue == nil || observedMax > *r.LastIssue {
		v := observedMax
		r.LastIssue = &v
	}
	return r
}

// FullName returns the "<owner>/<name>" form used in configuration and logs.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}
