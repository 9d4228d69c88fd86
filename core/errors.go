// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import "errors"

// Errors returned to callers of the answering engine
var (
	// ErrEmptyMessage indicates the utterance was empty after trimming.
	ErrEmptyMessage = errors.New("message cannot be empty")

	// ErrConversationNotFound indicates the conversation does not exist or
	// belongs to another user.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrInferenceFailed indicates the language model could not produce a response.
	ErrInferenceFailed = errors.New("inference failed")

	// ErrStoreUnavailable indicates the conversation store could not be reached.
	ErrStoreUnavailable = errors.New("conversation store unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service failed.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
)

// Domain validation errors
var (
	// ErrInvalidKnowledgeEntry indicates a KnowledgeEntry failed validation.
	ErrInvalidKnowledgeEntry = errors.New("invalid knowledge entry")

	// ErrEmptyTitle indicates a title is empty after trimming.
	ErrEmptyTitle = errors.New("title cannot be empty")

	// ErrTitleTooLong indicates a title exceeds MaxTitleLength.
	ErrTitleTooLong = errors.New("title too long")

	// ErrEmptyContent indicates the Content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidKnowledgeKind indicates an unknown KnowledgeKind value.
	ErrInvalidKnowledgeKind = errors.New("invalid knowledge kind")

	// ErrEmptyUserID indicates a missing user identifier.
	ErrEmptyUserID = errors.New("user id cannot be empty")
)
