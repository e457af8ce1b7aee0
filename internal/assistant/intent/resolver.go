package intent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"university-assistant/internal/common/genai"
	"university-assistant/internal/common/logger"
)

const resultSchema = `{
	"type": "object",
	"required": ["intent"],
	"properties": {
		"intent": {"type": "string"},
		"entities": {"type": "object"},
		"requires_followup": {"type": "boolean"}
	}
}`

var resultSchemaLoader = gojsonschema.NewStringLoader(resultSchema)

// Resolver classifies queries through the text-generation collaborator.
// It never fails: any call or parse problem degrades to DefaultResult.
type Resolver struct {
	gen    genai.Generator
	logger logger.Logger
}

func NewResolver(gen genai.Generator, log logger.Logger) *Resolver {
	return &Resolver{
		gen: gen,
		logger: log.With(map[string]interface{}{
			"component": "intent-resolver",
		}),
	}
}

// Resolve classifies the query. The conversation block, when present, is the
// recent exchanges rendered as "User: ..." / "Assistant: ..." lines.
func (r *Resolver) Resolve(ctx context.Context, query, conversation string) Result {
	raw, err := r.gen.Generate(ctx, buildPrompt(query, conversation))
	if err != nil {
		r.logger.Warn("intent classification call failed, using default", map[string]interface{}{
			"error": err.Error(),
		})
		return DefaultResult()
	}
	return r.parse(raw)
}

func buildPrompt(query, conversation string) string {
	prompt := `Analyze this university-related query and respond with ONLY a JSON object containing:
- "intent" (one of: department_info, faculty_info, student_info, program_info, course_info, enrollment_info, building_info, room_info, announcement, other)
- "entities" (a dictionary of relevant attributes)
- "requires_followup" (boolean indicating if follow-up questions might be needed)
`
	if conversation != "" {
		prompt += "\nRecent conversation:\n" + conversation + "\n"
	}
	return prompt + fmt.Sprintf("\nQuery: %q\n", query)
}

func (r *Resolver) parse(raw string) Result {
	content := genai.StripFences(raw)

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		r.logger.Warn("intent response is not valid JSON, using default", map[string]interface{}{
			"error": err.Error(),
		})
		return DefaultResult()
	}

	validation, err := gojsonschema.Validate(resultSchemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil || !validation.Valid() {
		r.logger.Warn("intent response failed schema validation, using default", nil)
		return DefaultResult()
	}

	result := DefaultResult()
	if name, ok := doc["intent"].(string); ok {
		result.Intent = Parse(name)
	}
	if followup, ok := doc["requires_followup"].(bool); ok {
		result.RequiresFollowup = followup
	}
	if entities, ok := doc["entities"].(map[string]interface{}); ok {
		for key, value := range entities {
			switch v := value.(type) {
			case string:
				if v != "" {
					result.Entities[key] = v
				}
			case float64, bool:
				result.Entities[key] = fmt.Sprintf("%v", v)
			default:
				// nulls, arrays and nested objects carry nothing usable
			}
		}
	}
	return result
}
