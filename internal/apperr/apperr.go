package apperr

import "errors"

// Error taxonomy shared by the HTTP side, the relay and the store.
// Components wrap these with fmt.Errorf("...: %w", ...) and callers test with errors.Is.
var (
	// ErrMalformedSubmission: the body does not parse as key=value pairs.
	ErrMalformedSubmission = errors.New("malformed submission")

	// ErrIOFailure: the append log could not be read, parsed or written.
	ErrIOFailure = errors.New("io failure")

	// ErrBadRequest: the HTTP request framing is missing or invalid.
	ErrBadRequest = errors.New("bad request")
)

// Kind returns a short label for err, used in logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrMalformedSubmission):
		return "malformed_submission"
	case errors.Is(err, ErrIOFailure):
		return "io_failure"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	default:
		return "unknown"
	}
}
