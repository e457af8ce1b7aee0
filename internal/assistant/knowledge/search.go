package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"university-assistant/internal/common/database"
	"university-assistant/internal/common/genai"
	"university-assistant/internal/common/logger"
	"university-assistant/internal/common/metrics"
	"university-assistant/internal/university"
)

const (
	cacheKeyPrefix = "kb_search_"

	// DefaultSource labels entries imported without a source URL.
	DefaultSource = "University Knowledge Base"
)

var ErrSearchFailed = errors.New("KNOWLEDGE_SEARCH_FAILED")

// Entry is one ranked knowledge base hit.
type Entry struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Source    string `json:"source"`
	Relevance int    `json:"relevance"`
}

// Records shapes entries for the response formatter.
func Records(entries []Entry) []university.Record {
	records := make([]university.Record, 0, len(entries))
	for _, e := range entries {
		source := e.Source
		if source == "" {
			source = DefaultSource
		}
		records = append(records, university.Record{
			"question": e.Question,
			"answer":   e.Answer,
			"source":   source,
			"type":     "knowledge_base",
		})
	}
	return records
}

// Searcher ranks knowledge base entries against a query. Results are cached
// so repeated questions skip both the keyword extraction call and the
// database.
type Searcher struct {
	db       *sql.DB
	cache    *database.RedisClient
	gen      genai.Generator
	cacheTTL time.Duration
	logger   logger.Logger
}

func NewSearcher(db *sql.DB, cache *database.RedisClient, gen genai.Generator, cacheTTL time.Duration, log logger.Logger) *Searcher {
	return &Searcher{
		db:       db,
		cache:    cache,
		gen:      gen,
		cacheTTL: cacheTTL,
		logger: log.With(map[string]interface{}{
			"component": "knowledge-search",
		}),
	}
}

func cacheKey(query string) string {
	return cacheKeyPrefix + url.QueryEscape(strings.ToLower(query))
}

// Search returns up to 5 entries ranked by relevance tier. An empty query
// returns no entries without touching the cache or the database.
func (s *Searcher) Search(ctx context.Context, query string) ([]Entry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Entry{}, nil
	}

	key := cacheKey(query)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		var entries []Entry
		if jsonErr := json.Unmarshal([]byte(cached), &entries); jsonErr == nil {
			metrics.KnowledgeCacheHits.Inc()
			return entries, nil
		}
		s.logger.Warn("cached search result is unreadable, re-searching", map[string]interface{}{
			"cache_key": key,
		})
	} else if err != redis.Nil {
		s.logger.WithError(err).Warn("search cache lookup failed", map[string]interface{}{
			"cache_key": key,
		})
	}
	metrics.KnowledgeCacheMisses.Inc()

	keywords := s.extractKeywords(ctx, query)
	entries, err := s.query(ctx, query, keywords)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(entries); err == nil {
		if err := s.cache.Set(ctx, key, payload, s.cacheTTL); err != nil {
			s.logger.WithError(err).Warn("could not cache search result", map[string]interface{}{
				"cache_key": key,
			})
		}
	}
	return entries, nil
}

const keywordPrompt = `Extract the 3-5 most important keywords from this query that would be useful for database searching.
Return ONLY a JSON array of keywords in order of importance.

Query: %q

Example Response: ["tuition fees", "payment deadline", "computer science"]`

// extractKeywords asks the collaborator for search keywords. Any failure
// falls back to the query's own words longer than 3 characters.
func (s *Searcher) extractKeywords(ctx context.Context, query string) []string {
	raw, err := s.gen.Generate(ctx, fmt.Sprintf(keywordPrompt, query))
	if err != nil {
		s.logger.Warn("keyword extraction call failed, using fallback tokens", map[string]interface{}{
			"error": err.Error(),
		})
		return fallbackKeywords(query)
	}

	var extracted []string
	if err := json.Unmarshal([]byte(genai.StripFences(raw)), &extracted); err != nil {
		s.logger.Warn("keyword extraction returned invalid JSON, using fallback tokens", nil)
		return fallbackKeywords(query)
	}

	keywords := make([]string, 0, len(extracted))
	for _, kw := range extracted {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if len(kw) > 2 {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

func fallbackKeywords(query string) []string {
	keywords := []string{}
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if len(word) > 3 {
			keywords = append(keywords, word)
		}
	}
	return keywords
}

func (s *Searcher) query(ctx context.Context, query string, keywords []string) ([]Entry, error) {
	lower := strings.ToLower(query)
	contains := "%" + university.EscapeLike(query) + "%"

	args := []interface{}{lower, lower, contains, contains}
	caseExpr := `CASE
		WHEN LOWER(question) = $1 THEN 100
		WHEN LOWER(answer) = $2 THEN 90
		WHEN question ILIKE $3 THEN 80
		WHEN answer ILIKE $4 THEN 70
		ELSE 50
	END`

	args = append(args, lower)
	conds := []string{fmt.Sprintf("LOWER(question) = $%d", len(args))}
	args = append(args, lower)
	conds = append(conds, fmt.Sprintf("LOWER(answer) = $%d", len(args)))
	for _, kw := range keywords {
		p := "%" + university.EscapeLike(kw) + "%"
		args = append(args, p)
		conds = append(conds, fmt.Sprintf("question ILIKE $%d", len(args)))
		args = append(args, p)
		conds = append(conds, fmt.Sprintf("answer ILIKE $%d", len(args)))
	}

	stmt := fmt.Sprintf(`SELECT question, answer, source, %s AS relevance
		FROM ai_knowledgebaseentry
		WHERE %s
		ORDER BY relevance DESC, id
		LIMIT 5`, caseExpr, strings.Join(conds, " OR "))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var source sql.NullString
		if err := rows.Scan(&e.Question, &e.Answer, &source, &e.Relevance); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
		}
		e.Source = source.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
