package answer

import "errors"

var (
	// ErrConversationsRequired is returned when no conversation manager is provided.
	ErrConversationsRequired = errors.New("conversation manager required")

	// ErrCompleterRequired is returned when no completer is provided.
	ErrCompleterRequired = errors.New("completer required")

	// ErrRetrieverRequired is returned when neither retriever is provided.
	ErrRetrieverRequired = errors.New("at least one retriever required")
)
