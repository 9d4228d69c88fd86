package knowledge

import "errors"

var (
	// ErrRepositoryRequired is returned when no knowledge repository is provided.
	ErrRepositoryRequired = errors.New("knowledge repository required")

	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidSeedFile is returned when a seed file cannot be parsed or holds invalid entries.
	ErrInvalidSeedFile = errors.New("invalid seed file")
)
