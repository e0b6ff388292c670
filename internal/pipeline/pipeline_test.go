package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/akarpos/glossa/internal/engine"
	"github.com/akarpos/glossa/internal/generate"
	"github.com/akarpos/glossa/internal/history"
	"github.com/akarpos/glossa/internal/retrieval"
)

// fakeTranslator translates via a lookup table keyed by text and target
// language, and records every call.
type fakeTranslator struct {
	detectLang   string
	detectErr    error
	translations map[string]string // "text|target" -> result
	translateErr error
	calls        []string
}

func (f *fakeTranslator) Detect(ctx context.Context, text string) (string, error) {
	if f.detectErr != nil {
		return "", f.detectErr
	}
	return f.detectLang, nil
}

func (f *fakeTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	f.calls = append(f.calls, text+"|"+target)
	if f.translateErr != nil {
		return "", f.translateErr
	}
	if out, ok := f.translations[text+"|"+target]; ok {
		return out, nil
	}
	return text, nil
}

type fakeSearcher struct {
	result   retrieval.QueryResult
	err      error
	gotQuery string
}

func (f *fakeSearcher) Search(ctx context.Context, query string) (retrieval.QueryResult, error) {
	f.gotQuery = query
	if f.err != nil {
		return retrieval.QueryResult{}, f.err
	}
	return f.result, nil
}

type fakeHistory struct {
	turns     []history.Turn
	readErr   error
	appendErr error
	appended  []history.Turn
}

func (f *fakeHistory) Append(ctx context.Context, sessionID string, turns ...history.Turn) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, turns...)
	return nil
}

func (f *fakeHistory) ReadTail(ctx context.Context, sessionID string, limit int) ([]history.Turn, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.turns, nil
}

type fakeGenerator struct {
	reply       string
	err         error
	calls       int
	gotMessages []engine.Message
}

func (f *fakeGenerator) Generate(ctx context.Context, messages []engine.Message) (string, error) {
	f.calls++
	f.gotMessages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func testLangs() Langs {
	return Langs{IndexLang: "en", GenLang: "en", DefaultUserLang: "en"}
}

func newTestOrchestrator(tr Translator, s Searcher, h HistoryStore, g Generator) *Orchestrator {
	return NewOrchestrator(tr, s, h, g, generate.NewPrompt(""), testLangs(), 10)
}

func TestHandleMessage_FrenchRoundTrip(t *testing.T) {
	tr := &fakeTranslator{
		detectLang: "fr",
		translations: map[string]string{
			"quelle est la capitale|en": "what is the capital",
			"The capital is Paris.|fr":  "La capitale est Paris.",
		},
	}
	searcher := &fakeSearcher{
		result: retrieval.QueryResult{Text: "Paris is the capital of France.", SourceID: "doc1", Score: 0.9, Found: true},
	}
	hist := &fakeHistory{}
	gen := &fakeGenerator{reply: "The capital is Paris."}
	o := newTestOrchestrator(tr, searcher, hist, gen)

	res, err := o.HandleMessage(context.Background(), "s1", "", "quelle est la capitale")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if res.UserLang != "fr" {
		t.Errorf("UserLang = %q, want fr", res.UserLang)
	}
	if searcher.gotQuery != "what is the capital" {
		t.Errorf("retriever saw %q, want the normalized English query", searcher.gotQuery)
	}
	if res.Reply != "La capitale est Paris." {
		t.Errorf("Reply = %q, want the French translation", res.Reply)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want exactly 1", gen.calls)
	}
	if !res.ContextFound {
		t.Error("ContextFound = false")
	}

	// History is stored in the generation language.
	if len(hist.appended) != 2 {
		t.Fatalf("appended %d turns, want 2", len(hist.appended))
	}
	if hist.appended[0].Role != "user" || hist.appended[0].Content != "what is the capital" {
		t.Errorf("user turn = %+v, want normalized input", hist.appended[0])
	}
	if hist.appended[1].Role != "assistant" || hist.appended[1].Content != "The capital is Paris." {
		t.Errorf("assistant turn = %+v, want reply before back-translation", hist.appended[1])
	}
}

func TestHandleMessage_SameLanguageSkipsTranslation(t *testing.T) {
	tr := &fakeTranslator{detectLang: "en"}
	searcher := &fakeSearcher{result: retrieval.QueryResult{Text: "chunk", Found: true, Score: 0.5}}
	gen := &fakeGenerator{reply: "answer"}
	o := newTestOrchestrator(tr, searcher, &fakeHistory{}, gen)

	res, err := o.HandleMessage(context.Background(), "s1", "", "hello there")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if res.Reply != "answer" {
		t.Errorf("Reply = %q", res.Reply)
	}
	if len(tr.calls) != 0 {
		t.Errorf("translate called %d times for same-language turn, want 0: %v", len(tr.calls), tr.calls)
	}
}

func TestHandleMessage_NoContextStillGenerates(t *testing.T) {
	tr := &fakeTranslator{detectLang: "en"}
	searcher := &fakeSearcher{
		result: retrieval.QueryResult{Text: retrieval.NoContextText, Score: 0.1},
	}
	gen := &fakeGenerator{reply: "general knowledge answer"}
	o := newTestOrchestrator(tr, searcher, &fakeHistory{}, gen)

	res, err := o.HandleMessage(context.Background(), "s1", "", "unrelated question")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1 even without context", gen.calls)
	}
	if res.ContextFound {
		t.Error("ContextFound = true for sentinel result")
	}
	if !strings.Contains(gen.gotMessages[0].Content, retrieval.NoContextText) {
		t.Errorf("prompt missing verbatim sentinel: %q", gen.gotMessages[0].Content)
	}
}

func TestHandleMessage_SentinelNotTranslated(t *testing.T) {
	tr := &fakeTranslator{detectLang: "en"}
	searcher := &fakeSearcher{result: retrieval.QueryResult{Text: retrieval.NoContextText}}
	gen := &fakeGenerator{reply: "ok"}
	o := NewOrchestrator(tr, searcher, &fakeHistory{}, gen, generate.NewPrompt(""),
		Langs{IndexLang: "en", GenLang: "de", DefaultUserLang: "en"}, 10)

	if _, err := o.HandleMessage(context.Background(), "s1", "en", "frage"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	for _, call := range tr.calls {
		if strings.HasPrefix(call, retrieval.NoContextText+"|") {
			t.Errorf("sentinel was sent to the translator: %q", call)
		}
	}
	if !strings.Contains(gen.gotMessages[0].Content, retrieval.NoContextText) {
		t.Error("prompt missing verbatim sentinel")
	}
}

func TestHandleMessage_HistoryReadFailureDegrades(t *testing.T) {
	tr := &fakeTranslator{detectLang: "en"}
	searcher := &fakeSearcher{result: retrieval.QueryResult{Text: "chunk", Found: true}}
	hist := &fakeHistory{readErr: history.ErrUnavailable}
	gen := &fakeGenerator{reply: "still works"}
	o := newTestOrchestrator(tr, searcher, hist, gen)

	res, err := o.HandleMessage(context.Background(), "s1", "", "question")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if res.Reply != "still works" {
		t.Errorf("Reply = %q", res.Reply)
	}
	// System message + current input only, no history turns.
	if len(gen.gotMessages) != 2 {
		t.Errorf("prompt has %d messages, want 2 (no history)", len(gen.gotMessages))
	}
}

func TestHandleMessage_HistoryWriteFailureStillReplies(t *testing.T) {
	tr := &fakeTranslator{detectLang: "en"}
	searcher := &fakeSearcher{result: retrieval.QueryResult{Text: "chunk", Found: true}}
	hist := &fakeHistory{appendErr: history.ErrUnavailable}
	gen := &fakeGenerator{reply: "reply survives"}
	o := newTestOrchestrator(tr, searcher, hist, gen)

	res, err := o.HandleMessage(context.Background(), "s1", "", "question")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if res.Reply != "reply survives" {
		t.Errorf("Reply = %q", res.Reply)
	}
}

func TestHandleMessage_HistoryInPrompt(t *testing.T) {
	tr := &fakeTranslator{detectLang: "en"}
	searcher := &fakeSearcher{result: retrieval.QueryResult{Text: "chunk", Found: true}}
	hist := &fakeHistory{turns: []history.Turn{
		{Seq: 1, Role: "user", Content: "earlier question"},
		{Seq: 2, Role: "assistant", Content: "earlier answer"},
	}}
	gen := &fakeGenerator{reply: "follow-up answer"}
	o := newTestOrchestrator(tr, searcher, hist, gen)

	if _, err := o.HandleMessage(context.Background(), "s1", "", "follow-up"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(gen.gotMessages) != 4 {
		t.Fatalf("prompt has %d messages, want 4", len(gen.gotMessages))
	}
	if gen.gotMessages[1].Content != "earlier question" || gen.gotMessages[2].Content != "earlier answer" {
		t.Error("history turns missing or out of order in prompt")
	}
	if gen.gotMessages[3].Content != "follow-up" {
		t.Errorf("last message = %q, want current input", gen.gotMessages[3].Content)
	}
}

func TestHandleMessage_TranslationFailureIsFatal(t *testing.T) {
	tr := &fakeTranslator{detectLang: "fr", translateErr: errors.New("translator down")}
	searcher := &fakeSearcher{result: retrieval.QueryResult{Text: "chunk", Found: true}}
	gen := &fakeGenerator{reply: "unused"}
	o := newTestOrchestrator(tr, searcher, &fakeHistory{}, gen)

	_, err := o.HandleMessage(context.Background(), "s1", "", "bonjour")
	if err == nil {
		t.Fatal("expected fatal error when translation fails")
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times after translation failure, want 0", gen.calls)
	}
}

func TestHandleMessage_RetrievalErrorIsFatal(t *testing.T) {
	tr := &fakeTranslator{detectLang: "en"}
	searcher := &fakeSearcher{err: retrieval.ErrIndexUnavailable}
	gen := &fakeGenerator{reply: "unused"}
	o := newTestOrchestrator(tr, searcher, &fakeHistory{}, gen)

	_, err := o.HandleMessage(context.Background(), "s1", "", "question")
	if !errors.Is(err, retrieval.ErrIndexUnavailable) {
		t.Fatalf("error = %v, want ErrIndexUnavailable", err)
	}
	if gen.calls != 0 {
		t.Error("generator should not run when the index is down")
	}
}

func TestHandleMessage_GenerationErrorIsFatal(t *testing.T) {
	tr := &fakeTranslator{detectLang: "en"}
	searcher := &fakeSearcher{result: retrieval.QueryResult{Text: "chunk", Found: true}}
	gen := &fakeGenerator{err: generate.ErrTimeout}
	hist := &fakeHistory{}
	o := newTestOrchestrator(tr, searcher, hist, gen)

	_, err := o.HandleMessage(context.Background(), "s1", "", "question")
	if !errors.Is(err, generate.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if len(hist.appended) != 0 {
		t.Error("failed turn must not be written to history")
	}
}

func TestHandleMessage_DetectionFailureUsesDefault(t *testing.T) {
	tr := &fakeTranslator{detectErr: errors.New("detect down")}
	searcher := &fakeSearcher{result: retrieval.QueryResult{Text: "chunk", Found: true}}
	gen := &fakeGenerator{reply: "answer"}
	o := newTestOrchestrator(tr, searcher, &fakeHistory{}, gen)

	res, err := o.HandleMessage(context.Background(), "s1", "", "ambiguous text")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if res.UserLang != "en" {
		t.Errorf("UserLang = %q, want default en", res.UserLang)
	}
}

func TestHandleMessage_LangHintSkipsDetection(t *testing.T) {
	tr := &fakeTranslator{detectErr: errors.New("should not be called")}
	searcher := &fakeSearcher{result: retrieval.QueryResult{Text: "chunk", Found: true}}
	gen := &fakeGenerator{reply: "answer"}
	o := newTestOrchestrator(tr, searcher, &fakeHistory{}, gen)

	res, err := o.HandleMessage(context.Background(), "s1", "en", "hello")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if res.UserLang != "en" {
		t.Errorf("UserLang = %q, want hinted en", res.UserLang)
	}
}

func TestHandleMessage_SessionUsableAfterFailure(t *testing.T) {
	tr := &fakeTranslator{detectLang: "en"}
	searcher := &fakeSearcher{result: retrieval.QueryResult{Text: "chunk", Found: true}}
	gen := &fakeGenerator{err: generate.ErrUnavailable}
	hist := &fakeHistory{}
	o := newTestOrchestrator(tr, searcher, hist, gen)

	if _, err := o.HandleMessage(context.Background(), "s1", "", "first"); err == nil {
		t.Fatal("expected failure")
	}

	// Backend recovers; the same session must accept the next turn.
	gen.err = nil
	gen.reply = "recovered"
	res, err := o.HandleMessage(context.Background(), "s1", "", "second")
	if err != nil {
		t.Fatalf("HandleMessage after recovery: %v", err)
	}
	if res.Reply != "recovered" {
		t.Errorf("Reply = %q", res.Reply)
	}
}

func TestDegradedReplyFor(t *testing.T) {
	tr := &fakeTranslator{
		translations: map[string]string{
			DegradedReply + "|fr": "Désolé, je ne peux pas répondre.",
		},
	}
	o := newTestOrchestrator(tr, &fakeSearcher{}, &fakeHistory{}, &fakeGenerator{})

	if got := o.DegradedReplyFor(context.Background(), "fr"); got != "Désolé, je ne peux pas répondre." {
		t.Errorf("got %q, want translated degraded reply", got)
	}
	if got := o.DegradedReplyFor(context.Background(), "en"); got != DegradedReply {
		t.Errorf("got %q, want fixed English text", got)
	}

	tr.translateErr = errors.New("translator down")
	if got := o.DegradedReplyFor(context.Background(), "fr"); got != DegradedReply {
		t.Errorf("got %q, want English fallback when translation is down", got)
	}
}

func TestDegradedReplyFor_NonEnglishGenLang(t *testing.T) {
	tr := &fakeTranslator{
		translations: map[string]string{
			DegradedReply + "|de": "Entschuldigung, ich kann gerade nicht antworten.",
		},
	}
	o := NewOrchestrator(tr, &fakeSearcher{}, &fakeHistory{}, &fakeGenerator{},
		generate.NewPrompt(""),
		Langs{IndexLang: "en", GenLang: "de", DefaultUserLang: "de"}, 10)

	// The fixed text is English regardless of the generation language, so
	// a German user still gets it translated.
	if got := o.DegradedReplyFor(context.Background(), "de"); got != "Entschuldigung, ich kann gerade nicht antworten." {
		t.Errorf("got %q, want the reply translated for the user", got)
	}
	// And an English user gets the constant untouched.
	if got := o.DegradedReplyFor(context.Background(), "en"); got != DegradedReply {
		t.Errorf("got %q, want the fixed text verbatim", got)
	}
}
