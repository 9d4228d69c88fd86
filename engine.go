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

// Package kbassist wires storage, retrieval and inference into a question
// answering Engine built from a config.Config.
package kbassist

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/poiesic/kbassist/ai"
	"github.com/poiesic/kbassist/ai/openai"
	"github.com/poiesic/kbassist/answer"
	"github.com/poiesic/kbassist/config"
	"github.com/poiesic/kbassist/conversation"
	"github.com/poiesic/kbassist/fusion"
	"github.com/poiesic/kbassist/knowledge"
	"github.com/poiesic/kbassist/metrics"
	"github.com/poiesic/kbassist/prompt"
	"github.com/poiesic/kbassist/reembed"
	"github.com/poiesic/kbassist/retrieval"
	"github.com/poiesic/kbassist/storage"
	"github.com/poiesic/kbassist/storage/badger"
	"github.com/poiesic/kbassist/storage/postgres"
	"github.com/poiesic/kbassist/storage/weaviate"
	"github.com/prometheus/client_golang/prometheus"
)

// Engine owns every component needed to answer questions.
type Engine struct {
	cfg           *config.Config
	repos         *badger.Repositories
	pg            *postgres.Store
	vectors       *weaviate.Index
	provider      ai.AIProvider
	ownsProvider  bool
	embedder      *ai.EmbeddingClient
	sessions      storage.ConversationRepository
	conversations *conversation.Manager
	orchestrator  *answer.Orchestrator
	logger        *slog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	provider   ai.AIProvider
	monitor    answer.Monitor
	registerer prometheus.Registerer
	logger     *slog.Logger
}

// WithProvider supplies the AI services instead of building an
// OpenAI-compatible provider from the config. The caller keeps ownership.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithMonitor sets the request observer. It takes precedence over WithRegisterer.
func WithMonitor(monitor answer.Monitor) Option {
	return func(o *engineOptions) {
		o.monitor = monitor
	}
}

// WithRegisterer exports Prometheus metrics to reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *engineOptions) {
		o.registerer = reg
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// New opens the configured stores and builds the answering pipeline.
// Caller must Close the result when done.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	e := &Engine{cfg: cfg, logger: options.logger.With("component", "engine")}
	if err := e.open(ctx, options); err != nil {
		if closeErr := e.Close(); closeErr != nil {
			e.logger.Error("error releasing partially built engine", "err", closeErr)
		}
		return nil, err
	}
	return e, nil
}

func (e *Engine) open(ctx context.Context, options *engineOptions) error {
	cfg := e.cfg
	logger := options.logger

	aiCfg, err := cfg.AIConfig()
	if err != nil {
		return err
	}
	retrievalTimeout, err := cfg.RetrievalTimeout()
	if err != nil {
		return err
	}
	embeddingTimeout, err := cfg.EmbeddingTimeout()
	if err != nil {
		return err
	}

	// Open storage
	e.repos, err = badger.Open(cfg.Storage.Path, cfg.Storage.InMemory)
	if err != nil {
		return fmt.Errorf("failed to open knowledge store: %w", err)
	}

	var text storage.TextIndex = e.repos.Knowledge
	e.sessions = e.repos.Conversations
	if cfg.Storage.Backend == config.BackendPostgres {
		e.pg, err = postgres.Open(ctx, cfg.Storage.DSN, postgres.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := e.pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to create postgres schema: %w", err)
		}
		e.sessions = e.pg.Conversations()
		text = e.pg.Knowledge()
	}

	var vectors storage.VectorIndex = e.repos.Knowledge
	if cfg.Vectors.Backend == config.BackendWeaviate {
		e.vectors, err = weaviate.New(cfg.Vectors.Scheme, cfg.Vectors.Host,
			weaviate.WithClass(cfg.Vectors.Class),
			weaviate.WithDepartment(cfg.Vectors.Department),
			weaviate.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("failed to create weaviate client: %w", err)
		}
		if err := e.vectors.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to create weaviate class: %w", err)
		}
		vectors = e.vectors
	}

	// AI services
	e.provider = options.provider
	if e.provider == nil {
		e.provider, err = openai.NewProvider(aiCfg)
		if err != nil {
			return fmt.Errorf("failed to create AI provider: %w", err)
		}
		e.ownsProvider = true
	}
	e.embedder = ai.NewEmbeddingClient(e.provider.Embedder(), aiCfg.Dimensions)

	e.conversations, err = conversation.NewManager(e.sessions, conversation.WithLogger(logger))
	if err != nil {
		return err
	}

	semantic, err := retrieval.NewSemanticRetriever(vectors, retrieval.WithLogger(logger))
	if err != nil {
		return err
	}
	lexical, err := retrieval.NewLexicalRetriever(text, retrieval.WithLogger(logger))
	if err != nil {
		return err
	}

	budgeter, err := newBudgeter(cfg.Context)
	if err != nil {
		return err
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = answer.DefaultPoolSize
	}

	monitor := options.monitor
	if monitor == nil && options.registerer != nil {
		monitor = metrics.NewMonitor(options.registerer)
	}

	e.orchestrator, err = answer.NewOrchestrator(e.conversations, e.provider.Completer(),
		answer.WithLogger(logger),
		answer.WithMonitor(monitor),
		answer.WithSemantic(e.embedder, semantic),
		answer.WithLexical(lexical),
		answer.WithFuser(fusion.New(fusion.WithEpsilon(cfg.Retrieval.Epsilon))),
		answer.WithBudgeter(budgeter),
		answer.WithSystemPrompt(cfg.Context.SystemPrompt),
		answer.WithTopK(cfg.Retrieval.SemanticTopK, cfg.Retrieval.LexicalTopK),
		answer.WithMinScore(cfg.Retrieval.MinScore),
		answer.WithMaxContextChars(cfg.Context.MaxChars),
		answer.WithHistoryTurns(cfg.Context.HistoryTurns),
		answer.WithTimeouts(retrievalTimeout, aiCfg.InferenceTimeout),
		answer.WithEmbeddingTimeout(embeddingTimeout),
		answer.WithPoolSize(poolSize),
	)
	return err
}

// newBudgeter adds a tiktoken ceiling when context.max_tokens is set.
func newBudgeter(cfg config.ContextConfig) (*prompt.Budgeter, error) {
	if cfg.MaxTokens <= 0 {
		return prompt.NewBudgeter(), nil
	}
	counter, err := prompt.NewTiktokenCounter(cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding %q: %w", cfg.Encoding, err)
	}
	return prompt.NewBudgeter(prompt.WithTokenLimit(counter, cfg.MaxTokens)), nil
}

// Answer answers utterance for userID, continuing conversationID when it is
// not empty. See answer.Orchestrator.Answer.
func (e *Engine) Answer(ctx context.Context, userID, utterance, conversationID string) (*answer.Answer, error) {
	return e.orchestrator.Answer(ctx, userID, utterance, conversationID)
}

// Conversations returns the conversation manager.
func (e *Engine) Conversations() *conversation.Manager {
	return e.conversations
}

// Sessions returns the raw conversation store. It does not check ownership.
func (e *Engine) Sessions() storage.ConversationRepository {
	return e.sessions
}

// Knowledge returns the knowledge base of record.
func (e *Engine) Knowledge() storage.KnowledgeRepository {
	return e.repos.Knowledge
}

// NewImporter returns an importer that also fills the configured external indexes.
// Caller must Release the importer.
func (e *Engine) NewImporter(opts ...knowledge.Option) (*knowledge.Importer, error) {
	base := []knowledge.Option{knowledge.WithLogger(e.logger)}
	if e.pg != nil {
		base = append(base, knowledge.WithTextIndex(e.pg.Knowledge()))
	}
	if e.vectors != nil {
		base = append(base, knowledge.WithVectorIndex(e.vectors))
	}
	return knowledge.NewImporter(e.repos.Knowledge, e.embedder, append(base, opts...)...)
}

// NewReembedder returns a resumable reembedder over the knowledge base that
// mirrors refreshed vectors to weaviate when it is configured.
// Caller must Release the reembedder.
func (e *Engine) NewReembedder(cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	opts := []reembed.Option{
		reembed.WithCheckpoints(e.repos.Checkpoints),
		reembed.WithLogger(e.logger),
	}
	if e.vectors != nil {
		opts = append(opts, reembed.WithVectorSink(e.vectors))
	}
	return reembed.NewReembedder(e.repos.Knowledge, e.embedder, cfg, progress, opts...)
}

// Close releases every component, returning all close errors together.
func (e *Engine) Close() error {
	var result *multierror.Error

	if e.orchestrator != nil {
		e.orchestrator.Release()
	}
	if e.provider != nil && e.ownsProvider {
		if err := e.provider.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("AI provider: %w", err))
		}
	}
	if e.pg != nil {
		if err := e.pg.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("postgres: %w", err))
		}
	}
	if e.repos != nil {
		if err := e.repos.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("badger: %w", err))
		}
	}
	return result.ErrorOrNil()
}
