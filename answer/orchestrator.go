package answer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbassist/ai"
	"github.com/poiesic/kbassist/conversation"
	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/fusion"
	"github.com/poiesic/kbassist/prompt"
	"github.com/poiesic/kbassist/retrieval"
)

// Embedder turns an utterance into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SemanticSearcher is satisfied by *retrieval.SemanticRetriever.
type SemanticSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, minScore float64) retrieval.Result
}

// LexicalSearcher is satisfied by *retrieval.LexicalRetriever.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, topK int) retrieval.Result
}

// Answer is the result of one question.
type Answer struct {
	Response string
	// Sources describe the fragments sent to the model, in rank order.
	Sources        []core.Source
	ConversationID string
}

// Orchestrator answers questions. It is safe for concurrent use.
type Orchestrator struct {
	conversations *conversation.Manager
	completer     ai.Completer
	embedder      Embedder
	semantic      SemanticSearcher
	lexical       LexicalSearcher
	fuser         *fusion.Fuser
	budgeter      *prompt.Budgeter
	pool          *ants.Pool
	monitor       Monitor
	logger        *slog.Logger

	systemPrompt     string
	semanticTopK     int
	lexicalTopK      int
	minScore         float64
	maxContextChars  int
	historyTurns     int
	retrievalTimeout time.Duration
	embeddingTimeout time.Duration
	inferenceTimeout time.Duration
}

// NewOrchestrator creates an Orchestrator. At least one of WithSemantic or
// WithLexical must be given. Call Release when done.
func NewOrchestrator(conversations *conversation.Manager, completer ai.Completer, opts ...Option) (*Orchestrator, error) {
	if conversations == nil {
		return nil, ErrConversationsRequired
	}
	if completer == nil {
		return nil, ErrCompleterRequired
	}

	o := &Orchestrator{
		conversations: conversations,
		completer:     completer,
	}
	defaults(o)

	for _, opt := range opts {
		if err := opt(o); err != nil {
			o.Release()
			return nil, err
		}
	}

	if (o.semantic == nil || o.embedder == nil) && o.lexical == nil {
		o.Release()
		return nil, ErrRetrieverRequired
	}

	if o.pool == nil {
		pool, err := ants.NewPool(DefaultPoolSize)
		if err != nil {
			return nil, err
		}
		o.pool = pool
	}

	o.logger = o.logger.With("component", "orchestrator")
	return o, nil
}

// Release stops the worker pool.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}

// Answer answers utterance for userID inside conversationID, or a new
// conversation when conversationID is empty.
func (o *Orchestrator) Answer(ctx context.Context, userID, utterance, conversationID string) (result *Answer, err error) {
	start := time.Now()
	o.monitor.Start(userID)
	defer func() {
		o.monitor.Finish(time.Since(start), err)
	}()

	utterance, err = core.ValidateUtterance(utterance)
	if err != nil {
		return nil, err
	}

	session, err := o.conversations.GetOrCreate(ctx, userID, utterance, conversationID)
	if err != nil {
		return nil, err
	}
	logger := o.logger.With("session", session.ID)

	semantic, lexical := o.retrieve(ctx, logger, utterance)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := o.fuser.Fuse(semantic.Fragments, lexical.Fragments)
	o.monitor.Fused(len(ranked))

	assembly := o.budgeter.Assemble(ranked, o.maxContextChars)
	o.monitor.Budgeted(len(assembly.Included), utf8.RuneCountInString(assembly.Text))

	history, err := o.conversations.LoadHistory(ctx, session.ID, o.historyTurns)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("failed to load history, answering without it", "err", err)
		history = nil
	}

	completion, err := o.infer(ctx, ai.CompletionRequest{
		System:    o.systemPrompt,
		Context:   assembly.Text,
		History:   history.Entries(),
		Utterance: utterance,
	})
	if err != nil {
		return nil, err
	}

	// A cancelled request must not leave a turn behind
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sources := make([]core.Source, len(assembly.Included))
	for i, f := range assembly.Included {
		sources[i] = core.SourceOf(f)
	}

	if _, perr := o.conversations.AppendTurn(ctx, session.ID, userID, utterance, completion.Text, sources); perr != nil {
		logger.Warn("failed to record turn, returning answer anyway", "err", perr)
		o.monitor.PersistFailed(perr)
	}

	return &Answer{
		Response:       completion.Text,
		Sources:        sources,
		ConversationID: session.ID,
	}, nil
}

// infer calls the model once under its own timeout.
func (o *Orchestrator) infer(ctx context.Context, req ai.CompletionRequest) (*ai.Completion, error) {
	inferCtx, cancel := context.WithTimeout(ctx, o.inferenceTimeout)
	defer cancel()

	start := time.Now()
	completion, err := o.completer.Complete(inferCtx, req)
	if err == nil && completion == nil {
		err = fmt.Errorf("empty completion")
	}
	o.monitor.InferenceDone(time.Since(start), err)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		o.logger.Error("inference failed", "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrInferenceFailed, err)
	}
	return completion, nil
}

// retrieve runs both retrievers on the pool and waits for both.
func (o *Orchestrator) retrieve(ctx context.Context, logger *slog.Logger, utterance string) (semantic, lexical retrieval.Result) {
	semantic = retrieval.Result{Fragments: []core.Fragment{}}
	lexical = retrieval.Result{Fragments: []core.Fragment{}}

	var wg sync.WaitGroup
	run := func(task func()) {
		wg.Add(1)
		wrapped := func() {
			defer wg.Done()
			task()
		}
		if err := o.pool.Submit(wrapped); err != nil {
			logger.Debug("worker pool unavailable, running inline", "err", err)
			wrapped()
		}
	}

	if o.semantic != nil && o.embedder != nil {
		run(func() {
			semantic = o.searchSemantic(ctx, logger, utterance)
		})
	}
	if o.lexical != nil {
		run(func() {
			lexical = o.searchLexical(ctx, logger, utterance)
		})
	}

	wg.Wait()
	return semantic, lexical
}

func (o *Orchestrator) searchSemantic(ctx context.Context, logger *slog.Logger, utterance string) retrieval.Result {
	start := time.Now()

	var result retrieval.Result
	vector, err := o.embed(ctx, utterance)
	if err != nil {
		result = retrieval.Degraded(err)
	} else {
		searchCtx, cancel := context.WithTimeout(ctx, o.retrievalTimeout)
		result = o.semantic.Search(searchCtx, vector, o.semanticTopK, o.minScore)
		cancel()
	}

	if result.Degraded {
		logger.Warn("semantic retrieval degraded", "err", result.Reason)
	}
	o.monitor.RetrievalDone(core.SourceSemantic, result.Len(), result.Degraded, time.Since(start))
	return result
}

func (o *Orchestrator) embed(ctx context.Context, utterance string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, o.embeddingTimeout)
	defer cancel()
	return o.embedder.Embed(ctx, utterance)
}

func (o *Orchestrator) searchLexical(ctx context.Context, logger *slog.Logger, utterance string) retrieval.Result {
	ctx, cancel := context.WithTimeout(ctx, o.retrievalTimeout)
	defer cancel()
	start := time.Now()

	result := o.lexical.Search(ctx, utterance, o.lexicalTopK)
	if result.Degraded {
		logger.Warn("lexical retrieval degraded", "err", result.Reason)
	}
	o.monitor.RetrievalDone(core.SourceLexical, result.Len(), result.Degraded, time.Since(start))
	return result
}
