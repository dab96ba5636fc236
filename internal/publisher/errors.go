package publisher

import (
	"context"
	"errors"
)

// Publish failure kinds. Returned errors wrap one of these.
var (
	ErrSourceNotFound    = errors.New("source file not found")
	ErrSourceUnreadable  = errors.New("source file unreadable")
	ErrDestinationCreate = errors.New("failed to create destination")
	ErrWriteFailed       = errors.New("write failed")
	ErrInvalidImage      = errors.New("invalid image payload")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotifyTimeout     = errors.New("media index notification timed out")
	ErrInternal          = errors.New("internal error")
)

// Error codes returned by Classify.
const (
	CodeSourceNotFound    = "source_not_found"
	CodeSourceUnreadable  = "source_unreadable"
	CodeDestinationCreate = "destination_create_failed"
	CodeWriteFailed       = "write_failed"
	CodeInvalidImage      = "invalid_image_payload"
	CodeInvalidArgument   = "invalid_argument"
	CodeNotifyTimeout     = "notify_timeout"
	CodeInternal          = "internal"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrSourceNotFound, CodeSourceNotFound},
	{ErrSourceUnreadable, CodeSourceUnreadable},
	{ErrDestinationCreate, CodeDestinationCreate},
	{ErrWriteFailed, CodeWriteFailed},
	{ErrInvalidImage, CodeInvalidImage},
	{ErrInvalidArgument, CodeInvalidArgument},
	{ErrNotifyTimeout, CodeNotifyTimeout},
}

// Classify returns a stable code for err, "" for nil, CodeInternal for
// errors outside the taxonomy.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeNotifyTimeout
	}
	return CodeInternal
}
