package respond

import (
	"fmt"
	"strings"

	"university-assistant/internal/assistant/intent"
	"university-assistant/internal/university"
)

const (
	maxArticles     = 3
	maxOptions      = 5
	maxSuggestions  = 2
	kbTitleMaxChars = 100

	defaultKBSource = "University Knowledge Base"
)

// Block is one element of the response payload the frontend renders.
// Meta deliberately lacks omitempty: the frontend expects "meta": null on
// blocks that carry none.
type Block struct {
	Type    string                 `json:"type"`
	Title   string                 `json:"title,omitempty"`
	Content interface{}            `json:"content,omitempty"`
	Link    string                 `json:"link,omitempty"`
	Source  string                 `json:"source,omitempty"`
	Data    []OptionItem           `json:"data,omitempty"`
	Meta    map[string]interface{} `json:"meta"`
}

// OptionItem is one selectable entry inside an options block.
type OptionItem struct {
	Content map[string]interface{} `json:"content"`
	Type    string                 `json:"type"`
}

// Suggestion is a follow-up question the frontend can offer.
type Suggestion struct {
	Name    string `json:"name"`
	Payload string `json:"payload"`
}

// SuggestionSet wraps suggestions in the envelope the frontend expects.
type SuggestionSet struct {
	Type      string       `json:"type"`
	Questions []Suggestion `json:"questions"`
}

// Format assembles the response blocks. The generated answer always leads
// as a text block; structured blocks follow for the intents the frontend
// renders specially. Knowledge base records are recognized by their type
// marker regardless of intent.
func Format(res intent.Result, records []university.Record, answer string) []Block {
	blocks := []Block{{
		Type:    "text",
		Content: answer,
		Meta:    nil,
	}}

	if len(records) == 0 {
		return blocks
	}

	if getString(records[0], "type") == "knowledge_base" {
		return append(blocks, knowledgeBlocks(records)...)
	}

	switch res.Intent {
	case intent.ProgramInfo:
		blocks = append(blocks, programArticles(records)...)
	case intent.CourseInfo:
		blocks = append(blocks, courseOptions(records))
	case intent.FacultyInfo:
		blocks = append(blocks, facultyArticles(records)...)
	}
	return blocks
}

func programArticles(records []university.Record) []Block {
	blocks := []Block{}
	for _, program := range capRecords(records, maxArticles) {
		blocks = append(blocks, Block{
			Type:    "article",
			Title:   getString(program, "name") + " Program",
			Content: program["description"],
			Link:    "/programs/" + getString(program, "code"),
			Meta: map[string]interface{}{
				"degree":  program["degree"],
				"credits": program["credits"],
			},
		})
	}
	return blocks
}

func facultyArticles(records []university.Record) []Block {
	blocks := []Block{}
	for _, faculty := range capRecords(records, maxArticles) {
		blocks = append(blocks, Block{
			Type:    "article",
			Title:   "Professor " + getString(faculty, "name"),
			Content: faculty["research"],
			Link:    "/faculty/" + emailLocalPart(getString(faculty, "email")),
			Meta: map[string]interface{}{
				"department": faculty["department"],
				"title":      faculty["title"],
			},
		})
	}
	return blocks
}

func courseOptions(records []university.Record) Block {
	items := []OptionItem{}
	for _, course := range capRecords(records, maxOptions) {
		items = append(items, OptionItem{
			Content: map[string]interface{}{
				"code": getString(course, "code"),
				"name": getString(course, "title"),
			},
			Type: "course",
		})
	}
	return Block{
		Type:  "options",
		Title: "Related Courses",
		Data:  items,
		Meta:  nil,
	}
}

func knowledgeBlocks(records []university.Record) []Block {
	blocks := []Block{}
	for _, entry := range records {
		source := getString(entry, "source")
		if source == "" {
			source = defaultKBSource
		}
		blocks = append(blocks, Block{
			Type:    "knowledge_base",
			Title:   truncate(getString(entry, "question"), kbTitleMaxChars),
			Content: entry["answer"],
			Source:  source,
			Meta: map[string]interface{}{
				"type": "knowledge_base_result",
			},
		})
	}
	return blocks
}

// Suggestions builds follow-up questions when the classification asked for
// them. Only department, faculty and program results have templates.
func Suggestions(res intent.Result, records []university.Record) *SuggestionSet {
	if !res.RequiresFollowup || len(records) == 0 {
		return nil
	}

	questions := []Suggestion{}
	for _, record := range capRecords(records, maxSuggestions) {
		switch res.Intent {
		case intent.DepartmentInfo:
			questions = append(questions, Suggestion{
				Name:    fmt.Sprintf("What courses are offered by %s?", getStringOr(record, "name", "this department")),
				Payload: "courses_" + getString(record, "code"),
			})
		case intent.FacultyInfo:
			questions = append(questions, Suggestion{
				Name:    fmt.Sprintf("What research does %s specialize in?", getStringOr(record, "name", "this professor")),
				Payload: "research_" + getString(record, "email"),
			})
		case intent.ProgramInfo:
			questions = append(questions, Suggestion{
				Name:    fmt.Sprintf("What are the requirements for %s?", getStringOr(record, "name", "this program")),
				Payload: "requirements_" + getString(record, "code"),
			})
		}
	}
	if len(questions) == 0 {
		return nil
	}
	return &SuggestionSet{
		Type:      "SUGGESTED_QUESTIONS",
		Questions: questions,
	}
}

func capRecords(records []university.Record, n int) []university.Record {
	if len(records) > n {
		return records[:n]
	}
	return records
}

func getString(record university.Record, key string) string {
	if v, ok := record[key].(string); ok {
		return v
	}
	return ""
}

func getStringOr(record university.Record, key, fallback string) string {
	if v := getString(record, key); v != "" {
		return v
	}
	return fallback
}

func emailLocalPart(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return s
}
