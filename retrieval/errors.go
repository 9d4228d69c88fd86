package retrieval

import "errors"

// ErrIndexRequired is returned when a retriever is built without an index.
var ErrIndexRequired = errors.New("index required")
