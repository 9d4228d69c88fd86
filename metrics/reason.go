package metrics

import (
	"context"
	"errors"

	"github.com/poiesic/kbassist/core"
)

// Reason maps an answer error to a low-cardinality label value.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, core.ErrEmptyMessage), errors.Is(err, core.ErrEmptyUserID):
		return "invalid_input"
	case errors.Is(err, core.ErrConversationNotFound):
		return "not_found"
	case errors.Is(err, core.ErrInferenceFailed):
		return "inference"
	case errors.Is(err, core.ErrStoreUnavailable):
		return "store"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}
