package reminder

import "errors"

var (
	// ErrSourceUnavailable marks a failed task or settings query. The check is
	// skipped for the current tick and retried on the next one.
	ErrSourceUnavailable = errors.New("reminder: source unavailable")
	// ErrDeliveryFailed marks a channel that was available but did not send.
	ErrDeliveryFailed = errors.New("reminder: delivery failed")
	// ErrMalformedSettings marks a settings field the check cannot use.
	ErrMalformedSettings = errors.New("reminder: malformed settings")
)
