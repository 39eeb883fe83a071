package model

// User is immutable within one ingestion cycle and refreshed on full scans.
type User struct {
	Login       string `json:"login"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// UserRepositories records the ordered list of a user's repository names, as
// observed (and filter-accepted) during an Owner unit's processing.
type UserRepositories struct {
	Login        string   `json:"login"`
	Repositories []string `json:"repositories"`
}

// Organization records the ordered list of an organization's repository
// names, as observed (and filter-accepted) during an Owner unit's
// processing.
type Organization struct {
	Name         string   `json:"name"`
	Repositories []string `json:"repositories"`
}
