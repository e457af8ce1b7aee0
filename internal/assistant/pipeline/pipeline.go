package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"university-assistant/internal/assistant/conversation"
	"university-assistant/internal/assistant/intent"
	"university-assistant/internal/assistant/knowledge"
	"university-assistant/internal/assistant/planner"
	"university-assistant/internal/assistant/respond"
	"university-assistant/internal/common/genai"
	"university-assistant/internal/common/logger"
	"university-assistant/internal/common/metrics"
	"university-assistant/internal/university"
)

// Envelope is the full response payload for one query.
type Envelope struct {
	Query       string                   `json:"query"`
	Data        []respond.Block          `json:"data"`
	ID          string                   `json:"id"`
	Suggestions []*respond.SuggestionSet `json:"suggestions"`
}

type intentResolver interface {
	Resolve(ctx context.Context, query, conversation string) intent.Result
}

type contextStore interface {
	Get(ctx context.Context, clientIP string) *conversation.Context
	Put(ctx context.Context, clientIP string, c *conversation.Context) error
}

type dataPlanner interface {
	Fetch(ctx context.Context, res intent.Result) (planner.Result, error)
}

type knowledgeSearcher interface {
	Search(ctx context.Context, query string) ([]knowledge.Entry, error)
}

var responseTemplates = map[intent.Intent]string{
	intent.DepartmentInfo: "Here's information about the department(s):",
	intent.FacultyInfo:    "Here are faculty members matching your query:",
	intent.StudentInfo:    "Here are students matching your query:",
	intent.ProgramInfo:    "Here are academic programs matching your query:",
	intent.CourseInfo:     "Here are courses matching your query:",
	intent.EnrollmentInfo: "Here are enrollment records matching your query:",
	intent.BuildingInfo:   "Here are campus buildings matching your query:",
	intent.RoomInfo:       "Here are rooms matching your query:",
	intent.Announcement:   "Here are recent university announcements:",
	intent.Other:          "Here's general information about the university:",
}

const (
	knowledgeTemplate = "Here's some information that might help:"
	notFoundTemplate  = "I couldn't find specific information, but here are some general options:"

	notFoundMessage    = "I couldn't find specific information about your query."
	notFoundSuggestion = "You might want to contact the university directly for more information."

	// answerFallback replaces the generated summary when the final
	// collaborator call fails. The structured blocks still go out.
	answerFallback = "I couldn't put together a full summary right now, but the information below should help. Please try again in a moment."
)

// Pipeline resolves one query end to end: load the client's conversational
// context, classify the query, fetch matching records, fall back to the
// knowledge base, generate a readable answer and persist the exchange.
type Pipeline struct {
	resolver      intentResolver
	contexts      contextStore
	planner       dataPlanner
	knowledge     knowledgeSearcher
	gen           genai.Generator
	historyWindow int
	logger        logger.Logger
}

func New(resolver intentResolver, contexts contextStore, plan dataPlanner,
	searcher knowledgeSearcher, gen genai.Generator, historyWindow int, log logger.Logger) *Pipeline {
	return &Pipeline{
		resolver:      resolver,
		contexts:      contexts,
		planner:       plan,
		knowledge:     searcher,
		gen:           gen,
		historyWindow: historyWindow,
		logger: log.With(map[string]interface{}{
			"component": "pipeline",
		}),
	}
}

// Ask resolves a query for a client. The returned error means the envelope
// could not be produced at all; the server degrades it to ErrorEnvelope.
func (p *Pipeline) Ask(ctx context.Context, clientIP, query string) (*Envelope, error) {
	start := time.Now()

	convCtx := p.contexts.Get(ctx, clientIP)
	res := p.resolver.Resolve(ctx, query, convCtx.RecentPrompt(p.historyWindow))
	convCtx.MergeEntities(res.Entities)
	metrics.AssistantQueries.WithLabelValues(string(res.Intent)).Inc()

	template := responseTemplates[res.Intent]
	fetched, err := p.planner.Fetch(ctx, res)
	if err != nil {
		metrics.PipelineFailures.WithLabelValues("plan").Inc()
		return nil, fmt.Errorf("fetching records: %w", err)
	}

	records := fetched.Records
	aggregate := fetched.Aggregate

	if fetched.Empty() {
		entries, err := p.knowledge.Search(ctx, query)
		if err != nil {
			metrics.PipelineFailures.WithLabelValues("knowledge").Inc()
			return nil, fmt.Errorf("searching knowledge base: %w", err)
		}
		if len(entries) > 0 {
			records = knowledge.Records(entries)
			template = knowledgeTemplate
		}
	}

	if len(records) == 0 && len(aggregate) == 0 {
		aggregate = university.Record{
			"message":    notFoundMessage,
			"suggestion": notFoundSuggestion,
		}
		template = notFoundTemplate
	}

	answer := p.generateAnswer(ctx, query, template, records, aggregate)
	suggestions := respond.Suggestions(res, records)
	blocks := respond.Format(res, records, answer)

	convCtx.Append(conversation.Exchange{
		Timestamp: time.Now().Format(time.RFC3339),
		Query:     query,
		Response:  answer,
		Intent:    res,
	})
	if err := p.contexts.Put(ctx, clientIP, convCtx); err != nil {
		p.logger.WithError(err).Warn("could not persist conversation context", map[string]interface{}{
			"client_ip": clientIP,
		})
	}

	envelope := &Envelope{
		Query: query,
		Data:  blocks,
		ID:    "res_" + uuid.NewString(),
	}
	if suggestions != nil {
		envelope.Suggestions = []*respond.SuggestionSet{suggestions}
	}

	metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	return envelope, nil
}

const answerPrompt = `You are a helpful assistant for the university. The user asked: %q

Context: %s

Relevant Data (in JSON format):
%s

Please generate a concise, friendly response that:
1. Directly answers the user's question using the provided data
2. Keeps the answer under 3-4 sentences when possible
3. Suggests contacting the relevant university office when the data is incomplete
4. Answers in the language the user wrote in

Respond with just the plain text answer.`

// generateAnswer never fails: when the collaborator call errors the
// templated fallback takes its place and the failure is counted.
func (p *Pipeline) generateAnswer(ctx context.Context, query, template string,
	records []university.Record, aggregate university.Record) string {
	var data interface{} = records
	if len(records) == 0 {
		data = aggregate
	}
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		payload = []byte("{}")
	}

	answer, err := p.gen.Generate(ctx, fmt.Sprintf(answerPrompt, query, template, payload))
	if err != nil {
		metrics.PipelineFailures.WithLabelValues("answer").Inc()
		p.logger.Warn("answer generation failed, using fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return answerFallback
	}
	return answer
}

// ErrorEnvelope is the degraded payload for requests the pipeline could not
// serve. The message is fixed; internal error detail never reaches the
// client.
func ErrorEnvelope(query string) *Envelope {
	return &Envelope{
		Query: query,
		Data: []respond.Block{{
			Type:    "text",
			Content: "Sorry, an error occurred while processing your request. Please try again later.",
			Meta:    nil,
		}},
		ID: "error_response",
	}
}
