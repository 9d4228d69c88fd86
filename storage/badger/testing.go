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

package badger

import (
	"github.com/hashicorp/go-multierror"
)

// Repositories bundles every repository sharing one backend.
type Repositories struct {
	Backend       *Backend
	Conversations *ConversationRepository
	Knowledge     *KnowledgeRepository
	Checkpoints   *CheckpointRepository
}

// Open opens a backend at path and creates all repositories on it.
// Caller must Close the result when done.
func Open(path string, inMemory bool) (*Repositories, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}

	conversations, err := NewConversationRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	knowledge, err := NewKnowledgeRepository(backend)
	if err != nil {
		conversations.Close()
		backend.Close()
		return nil, err
	}

	return &Repositories{
		Backend:       backend,
		Conversations: conversations,
		Knowledge:     knowledge,
		Checkpoints:   NewCheckpointRepository(backend),
	}, nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
func NewMemoryRepositories() (*Repositories, error) {
	return Open("", true)
}

// Close releases the repositories' sequences and then the backend.
func (r *Repositories) Close() error {
	var result *multierror.Error
	if err := r.Conversations.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := r.Knowledge.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := r.Backend.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
