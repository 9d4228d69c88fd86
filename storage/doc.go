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


// Package storage provides the storage abstraction layer for kbassist.
//
// This package defines repository interfaces that decouple storage implementation
// from the answering engine. Conversation state and knowledge can live in
// different backends (BadgerDB, PostgreSQL, Weaviate) and be combined freely.
//
// # Architecture
//
//   - ConversationRepository: sessions and their append-only turns
//   - KnowledgeRepository: knowledge entries plus both indexes over them
//   - VectorIndex: embedding similarity search
//   - TextIndex: full-text search with administrative priority
//   - CheckpointRepository: progress markers for resumable jobs
//
// Implementations:
//
//   - storage/badger: embedded store for all repositories
//   - storage/postgres: chat_sessions, chat_messages and knowledge_base tables
//   - storage/weaviate: external VectorIndex
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repos.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
