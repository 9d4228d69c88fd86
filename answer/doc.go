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

// Package answer runs one grounded question-answering request end to end.
//
// An Orchestrator validates the utterance, resolves the conversation, runs the
// semantic and lexical retrievers in parallel on a worker pool, fuses and
// budgets their fragments, loads recent history, calls the language model once
// and records the turn with provenance.
//
// Retrieval and embedding failures are soft: they are logged, reported to the
// Monitor and leave the context empty rather than failing the request.
// Inference failures return core.ErrInferenceFailed. A failure to record the
// turn after a successful answer is logged as a warning and the answer is
// still returned.
package answer
