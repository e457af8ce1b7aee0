package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"university-assistant/internal/assistant/conversation"
	"university-assistant/internal/assistant/intent"
	"university-assistant/internal/assistant/knowledge"
	"university-assistant/internal/assistant/planner"
	"university-assistant/internal/common/logger"
	"university-assistant/internal/university"
)

type stubResolver struct {
	res           intent.Result
	conversations []string
}

func (s *stubResolver) Resolve(_ context.Context, _ string, conv string) intent.Result {
	s.conversations = append(s.conversations, conv)
	return s.res
}

type memContexts struct {
	m    map[string]*conversation.Context
	puts int
}

func newMemContexts() *memContexts {
	return &memContexts{m: map[string]*conversation.Context{}}
}

func (s *memContexts) Get(_ context.Context, ip string) *conversation.Context {
	if c, ok := s.m[ip]; ok {
		return c
	}
	c := &conversation.Context{History: []conversation.Exchange{}, UserData: map[string]string{}}
	s.m[ip] = c
	return c
}

func (s *memContexts) Put(_ context.Context, ip string, c *conversation.Context) error {
	s.m[ip] = c
	s.puts++
	return nil
}

type stubPlanner struct {
	result planner.Result
	err    error
}

func (s *stubPlanner) Fetch(_ context.Context, _ intent.Result) (planner.Result, error) {
	return s.result, s.err
}

type stubSearcher struct {
	entries []knowledge.Entry
	err     error
	calls   int
}

func (s *stubSearcher) Search(_ context.Context, _ string) ([]knowledge.Entry, error) {
	s.calls++
	return s.entries, s.err
}

type stubGen struct {
	response string
	err      error
	prompts  []string
}

func (s *stubGen) Generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

type fixture struct {
	resolver *stubResolver
	contexts *memContexts
	planner  *stubPlanner
	searcher *stubSearcher
	gen      *stubGen
}

func newPipeline(t *testing.T, f *fixture) *Pipeline {
	t.Helper()
	if f.resolver == nil {
		f.resolver = &stubResolver{res: intent.DefaultResult()}
	}
	if f.contexts == nil {
		f.contexts = newMemContexts()
	}
	if f.planner == nil {
		f.planner = &stubPlanner{}
	}
	if f.searcher == nil {
		f.searcher = &stubSearcher{}
	}
	if f.gen == nil {
		f.gen = &stubGen{response: "Generated answer."}
	}
	return New(f.resolver, f.contexts, f.planner, f.searcher, f.gen, 3, logger.NewTestLogger(t))
}

func TestAskHappyPathWithRecords(t *testing.T) {
	f := &fixture{
		resolver: &stubResolver{res: intent.Result{
			Intent:           intent.DepartmentInfo,
			Entities:         map[string]string{"department": "CS"},
			RequiresFollowup: true,
		}},
		planner: &stubPlanner{result: planner.Result{Records: []university.Record{
			{"name": "Computer Science", "code": "CS"},
		}}},
	}
	p := newPipeline(t, f)

	env, err := p.Ask(context.Background(), "10.0.0.1", "Tell me about CS")
	require.NoError(t, err)

	require.NotEmpty(t, env.Data)
	assert.Equal(t, "text", env.Data[0].Type)
	assert.Equal(t, "Generated answer.", env.Data[0].Content)
	assert.True(t, strings.HasPrefix(env.ID, "res_"))
	require.Len(t, env.Suggestions, 1)
	assert.Equal(t, "SUGGESTED_QUESTIONS", env.Suggestions[0].Type)

	// Knowledge base untouched, exchange persisted, entity remembered.
	assert.Zero(t, f.searcher.calls)
	assert.Equal(t, 1, f.contexts.puts)
	stored := f.contexts.m["10.0.0.1"]
	require.Len(t, stored.History, 1)
	assert.Equal(t, "Tell me about CS", stored.History[0].Query)
	assert.Equal(t, "CS", stored.UserData["department"])
}

func TestAskAggregateSkipsKnowledgeBase(t *testing.T) {
	f := &fixture{
		planner: &stubPlanner{result: planner.Result{Aggregate: university.Record{
			"departments_count": 8,
		}}},
	}
	p := newPipeline(t, f)

	env, err := p.Ask(context.Background(), "10.0.0.1", "Tell me about the university")
	require.NoError(t, err)

	assert.Zero(t, f.searcher.calls)
	require.Len(t, env.Data, 1)
	assert.Nil(t, env.Suggestions)
	assert.Contains(t, f.gen.prompts[0], "departments_count")
}

func TestAskFallsBackToKnowledgeBase(t *testing.T) {
	f := &fixture{
		resolver: &stubResolver{res: intent.Result{Intent: intent.CourseInfo, Entities: map[string]string{}}},
		searcher: &stubSearcher{entries: []knowledge.Entry{
			{Question: "How do I enroll?", Answer: "Use the portal.", Relevance: 80},
		}},
	}
	p := newPipeline(t, f)

	env, err := p.Ask(context.Background(), "10.0.0.1", "How do I enroll?")
	require.NoError(t, err)

	require.Len(t, env.Data, 2)
	assert.Equal(t, "knowledge_base", env.Data[1].Type)
	assert.Contains(t, f.gen.prompts[0], knowledgeTemplate)
}

func TestAskGenericFallback(t *testing.T) {
	f := &fixture{}
	p := newPipeline(t, f)

	env, err := p.Ask(context.Background(), "10.0.0.1", "something obscure")
	require.NoError(t, err)

	require.Len(t, env.Data, 1)
	assert.Equal(t, "text", env.Data[0].Type)
	assert.Nil(t, env.Suggestions)
	assert.Equal(t, 1, f.searcher.calls)
	assert.Contains(t, f.gen.prompts[0], notFoundMessage)
	assert.Contains(t, f.gen.prompts[0], notFoundTemplate)
}

func TestAskPlannerFailurePropagates(t *testing.T) {
	f := &fixture{planner: &stubPlanner{err: errors.New("db down")}}
	p := newPipeline(t, f)

	_, err := p.Ask(context.Background(), "10.0.0.1", "anything")
	require.Error(t, err)
}

func TestAskAnswerFailureUsesFallback(t *testing.T) {
	f := &fixture{
		planner: &stubPlanner{result: planner.Result{Records: []university.Record{
			{"name": "Computer Science", "code": "CS"},
		}}},
		gen: &stubGen{err: errors.New("model unavailable")},
	}
	p := newPipeline(t, f)

	env, err := p.Ask(context.Background(), "10.0.0.1", "Tell me about CS")
	require.NoError(t, err)

	assert.Equal(t, answerFallback, env.Data[0].Content)
	stored := f.contexts.m["10.0.0.1"]
	require.Len(t, stored.History, 1)
	assert.Equal(t, answerFallback, stored.History[0].Response)
}

func TestAskContextGrowsAcrossRequests(t *testing.T) {
	f := &fixture{resolver: &stubResolver{res: intent.DefaultResult()}}
	p := newPipeline(t, f)
	ctx := context.Background()

	_, err := p.Ask(ctx, "10.0.0.1", "first question")
	require.NoError(t, err)
	_, err = p.Ask(ctx, "10.0.0.1", "second question")
	require.NoError(t, err)

	stored := f.contexts.m["10.0.0.1"]
	require.Len(t, stored.History, 2)

	// The second classification saw the first exchange.
	require.Len(t, f.resolver.conversations, 2)
	assert.Empty(t, f.resolver.conversations[0])
	assert.Contains(t, f.resolver.conversations[1], "User: first question")
}

func TestErrorEnvelopeShape(t *testing.T) {
	env := ErrorEnvelope("bad query")

	assert.Equal(t, "error_response", env.ID)
	assert.Equal(t, "bad query", env.Query)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "text", env.Data[0].Type)
	assert.Contains(t, env.Data[0].Content.(string), "Sorry, an error occurred")
	assert.Nil(t, env.Suggestions)
}
