package response

import "mailgate/lib/clock"

// Failure is the JSON envelope for every error response. Reason is a stable
// machine-readable code; several reasons can share one HTTP status, so the
// status alone never identifies the cause.
type Failure struct {
	Ok        bool   `json:"ok"`
	Reason    string `json:"error"`
	Timestamp string `json:"ts"`
}

func Error(reason string) Failure {
	return Failure{
		Ok:        false,
		Reason:    reason,
		Timestamp: clock.Now(),
	}
}
