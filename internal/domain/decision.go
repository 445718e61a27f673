package domain

// Decision is the outcome of evaluating one snapshot for one style.
// Reason is a user-visible contract: it is sent verbatim in the setup
// alert, not an internal log line.
type Decision struct {
	Triggered       bool   `json:"triggered"`
	Reason          string `json:"reason,omitempty"`
	ConfluenceScore int    `json:"confluence_score"`
}
