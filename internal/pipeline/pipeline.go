package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/akarpos/glossa/internal/engine"
	"github.com/akarpos/glossa/internal/history"
	"github.com/akarpos/glossa/internal/retrieval"
)

// DegradedReply is the fixed text surfaced when a turn fails fatally.
// Callers translate it to the user's language on a best-effort basis.
// The constant is authored in degradedReplyLang, independent of the
// deployment's generation language.
const (
	DegradedReply     = "Sorry, I cannot answer right now. Please try again."
	degradedReplyLang = "en"
)

const defaultHistoryLimit = 20

// Translator is the language surface the pipeline consumes.
type Translator interface {
	Detect(ctx context.Context, text string) (string, error)
	Translate(ctx context.Context, text, target string) (string, error)
}

// Searcher retrieves the best-matching context chunk for a query.
type Searcher interface {
	Search(ctx context.Context, query string) (retrieval.QueryResult, error)
}

// HistoryStore is the slice of the session log the pipeline needs.
type HistoryStore interface {
	Append(ctx context.Context, sessionID string, turns ...history.Turn) error
	ReadTail(ctx context.Context, sessionID string, limit int) ([]history.Turn, error)
}

// Generator produces a reply from the assembled messages.
type Generator interface {
	Generate(ctx context.Context, messages []engine.Message) (string, error)
}

// PromptBuilder assembles the message sequence for generation.
type PromptBuilder interface {
	Build(contextText string, hist []engine.Message, input string) []engine.Message
}

// Langs fixes the three languages a deployment operates in. IndexLang
// is the language documents were indexed in, GenLang the language the
// generation model works best in, DefaultUserLang the fallback when
// detection fails and no hint was given.
type Langs struct {
	IndexLang       string
	GenLang         string
	DefaultUserLang string
}

// Result is the outcome of one conversation turn.
type Result struct {
	Reply        string
	UserLang     string
	ContextFound bool
	Score        float32
	Duration     time.Duration
}

// Orchestrator runs the full turn: language detection, query
// normalization, retrieval, prompt assembly, generation, and reply
// translation, with the session history threaded through. Every turn
// leaves the session in a state that can accept the next message;
// failures either degrade locally or fail the whole turn, never
// half-apply.
type Orchestrator struct {
	translator   Translator
	searcher     Searcher
	history      HistoryStore
	generator    Generator
	prompt       PromptBuilder
	langs        Langs
	historyLimit int
}

// NewOrchestrator wires the pipeline components together.
func NewOrchestrator(
	translator Translator,
	searcher Searcher,
	hist HistoryStore,
	generator Generator,
	prompt PromptBuilder,
	langs Langs,
	historyLimit int,
) *Orchestrator {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Orchestrator{
		translator:   translator,
		searcher:     searcher,
		history:      hist,
		generator:    generator,
		prompt:       prompt,
		langs:        langs,
		historyLimit: historyLimit,
	}
}

// HandleMessage processes one user message and returns the reply in the
// user's language. langHint, when non-empty, skips detection. A non-nil
// error means the turn failed fatally; callers show DegradedReply (or
// its translation) and the session remains usable for the next turn.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, langHint, text string) (Result, error) {
	start := time.Now()

	userLang := o.resolveUserLang(ctx, langHint, text)

	// Normalize the query into the index language so retrieval compares
	// like with like.
	query, err := o.toLang(ctx, text, userLang, o.langs.IndexLang)
	if err != nil {
		return Result{UserLang: userLang}, fmt.Errorf("normalizing query: %w", err)
	}

	found, err := o.searcher.Search(ctx, query)
	if err != nil {
		return Result{UserLang: userLang}, fmt.Errorf("retrieving context: %w", err)
	}

	// The sentinel stays verbatim; only real chunks are moved into the
	// generation language.
	contextText := found.Text
	if found.Found {
		contextText, err = o.toLang(ctx, found.Text, o.langs.IndexLang, o.langs.GenLang)
		if err != nil {
			return Result{UserLang: userLang}, fmt.Errorf("normalizing context: %w", err)
		}
	}

	input, err := o.toLang(ctx, text, userLang, o.langs.GenLang)
	if err != nil {
		return Result{UserLang: userLang}, fmt.Errorf("normalizing input: %w", err)
	}

	// A failed history read degrades to an empty history rather than
	// failing the turn. Continuity suffers, the reply does not.
	past, err := o.history.ReadTail(ctx, sessionID, o.historyLimit)
	if err != nil {
		slog.Warn("pipeline: history read failed, continuing without history",
			"session_id", sessionID, "error", err)
		past = nil
	}

	messages := o.prompt.Build(contextText, turnsToMessages(past), input)

	reply, err := o.generator.Generate(ctx, messages)
	if err != nil {
		return Result{UserLang: userLang}, fmt.Errorf("generating reply: %w", err)
	}

	out, err := o.toLang(ctx, reply, o.langs.GenLang, userLang)
	if err != nil {
		return Result{UserLang: userLang}, fmt.Errorf("translating reply: %w", err)
	}

	// History is stored in the generation language so future prompts
	// stay monolingual regardless of who asks next.
	turns := []history.Turn{
		{Role: "user", Content: input},
		{Role: "assistant", Content: reply},
	}
	if err := o.history.Append(ctx, sessionID, turns...); err != nil {
		slog.Warn("pipeline: history write failed, reply returned anyway",
			"session_id", sessionID, "error", err)
	}

	return Result{
		Reply:        out,
		UserLang:     userLang,
		ContextFound: found.Found,
		Score:        found.Score,
		Duration:     time.Since(start),
	}, nil
}

// DegradedReplyFor returns DegradedReply in the user's language, falling
// back to the fixed English text when translation is down too.
func (o *Orchestrator) DegradedReplyFor(ctx context.Context, userLang string) string {
	if userLang == "" || userLang == degradedReplyLang {
		return DegradedReply
	}
	out, err := o.translator.Translate(ctx, DegradedReply, userLang)
	if err != nil {
		return DegradedReply
	}
	return out
}

// resolveUserLang returns the hint when given, otherwise detects, and
// falls back to the configured default when detection fails.
func (o *Orchestrator) resolveUserLang(ctx context.Context, langHint, text string) string {
	if langHint != "" {
		return langHint
	}
	lang, err := o.translator.Detect(ctx, text)
	if err != nil || lang == "" {
		slog.Warn("pipeline: language detection failed, using default",
			"default", o.langs.DefaultUserLang, "error", err)
		return o.langs.DefaultUserLang
	}
	return lang
}

// toLang translates text between languages, passing it through unchanged
// when source and target already match.
func (o *Orchestrator) toLang(ctx context.Context, text, from, to string) (string, error) {
	if from == to {
		return text, nil
	}
	return o.translator.Translate(ctx, text, to)
}

func turnsToMessages(turns []history.Turn) []engine.Message {
	if len(turns) == 0 {
		return nil
	}
	messages := make([]engine.Message, len(turns))
	for i, t := range turns {
		messages[i] = engine.Message{Role: t.Role, Content: t.Content}
	}
	return messages
}
