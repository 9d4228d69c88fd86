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

// Package ai provides abstractions for the AI services behind question answering.
//
// # Interfaces
//
//   - Embedder: Generates vector embeddings from text
//   - Completer: Runs one chat completion over a CompletionRequest
//   - AIProvider: Aggregates AI services for convenient initialization
//
// EmbeddingClient sits on top of an Embedder. It cleans utterances, checks the
// vector dimension, normalizes the result and reports every failure as
// core.ErrEmbeddingUnavailable so callers can degrade instead of failing.
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, etc.) return
// interface types. Mock constructors return concrete types so tests can set
// behavior and read call counts:
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, errors.New("down")
//	}
//	count := embedder.CallCount()
//
// # Usage Example
//
//	provider, err := openai.NewProvider(ai.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	client := ai.NewEmbeddingClient(provider.Embedder(), 384)
//	vector, err := client.Embed(ctx, "What is the remote work policy?")
package ai
