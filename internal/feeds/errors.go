package feeds

import "fmt"

// DecodeError reports a feed record that does not have the expected shape.
type DecodeError struct {
	Feed  string
	Stage string // Which unwrap step failed
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode feed %s: %s: %v", e.Feed, e.Stage, e.Err)
	}
	return fmt.Sprintf("decode feed %s: %s", e.Feed, e.Stage)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ResolutionError reports an invitation or offer whose feed is unknown.
type ResolutionError struct {
	Oracle       string
	InvitationID string
	Instance     string // Board id, when the invitation was found but its instance was not
}

func (e *ResolutionError) Error() string {
	if e.Instance != "" {
		return fmt.Sprintf("oracle %s: invitation %s: unknown instance %s", e.Oracle, e.InvitationID, e.Instance)
	}
	return fmt.Sprintf("oracle %s: no feed for invitation %s", e.Oracle, e.InvitationID)
}
