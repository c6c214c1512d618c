// internal/nlu/extractor.go
package nlu

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trip-report-bot/internal/common/config"
	stderrors "trip-report-bot/internal/common/errors"
	"trip-report-bot/internal/common/logger"
	"trip-report-bot/internal/common/metrics"
	"trip-report-bot/internal/filter"
)

// Cache is the subset of the Redis wrapper the extractor needs. A nil
// Cache disables caching without any further checks at call sites.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// Extractor calls an OpenAI-compatible chat completion endpoint and
// returns the raw candidate fields found in a message. It never judges
// whether the values are usable; that is the validator's job.
type Extractor struct {
	cfg    config.NLUConfig
	vocab  *filter.Vocabulary
	client *http.Client
	cache  Cache
	logger logger.Logger
}

func NewExtractor(cfg config.NLUConfig, vocab *filter.Vocabulary, cache Cache, log logger.Logger) *Extractor {
	return &Extractor{
		cfg:   cfg,
		vocab: vocab,
		// No client-level timeout; the per-call context bounds the request.
		client: &http.Client{},
		cache:  cache,
		logger: log.With(map[string]interface{}{"component": "nlu"}),
	}
}

// Extract returns the candidate fields mentioned in text. The partial
// filter accumulated in the session goes into the prompt as structured
// context so follow-up messages are read against what is already known.
// Identical (text, context) pairs within the cache TTL are served from
// Redis without a model call. Any failure to produce a schema-valid
// reply comes back as an extraction error so the caller can tell the
// user to rephrase.
func (e *Extractor) Extract(ctx context.Context, text string, partial filter.Filter) (filter.Candidate, error) {
	known := partialContext(partial)

	if cached, ok := e.fromCache(ctx, text, known); ok {
		metrics.ExtractionRequests.WithLabelValues("cache_hit").Inc()
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, config.GetDuration(e.cfg.Timeout))
	defer cancel()

	// Structured output first; some gateways reject response_format, so
	// a plain completion is the fallback.
	raw, err := e.complete(ctx, text, known, true)
	if err != nil {
		e.logger.Warn("structured completion failed, retrying without response_format", map[string]interface{}{
			"error": err.Error(),
		})
		raw, err = e.complete(ctx, text, known, false)
	}
	if err != nil {
		metrics.ExtractionRequests.WithLabelValues("error").Inc()
		return filter.Candidate{}, stderrors.NewExtractionError(err)
	}

	candidate, err := parseCandidate(raw)
	if err != nil {
		metrics.ExtractionRequests.WithLabelValues("unusable").Inc()
		e.logger.Warn("model reply unusable", map[string]interface{}{
			"error": err.Error(),
			"reply": truncate(raw, 200),
		})
		return filter.Candidate{}, stderrors.NewExtractionError(err)
	}

	metrics.ExtractionRequests.WithLabelValues("success").Inc()
	e.toCache(ctx, text, known, candidate)
	return candidate, nil
}

func (e *Extractor) complete(ctx context.Context, text, known string, structured bool) (string, error) {
	reqBody := chatRequest{
		Model: e.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: e.systemPrompt(known)},
			{Role: "user", Content: text},
		},
		Temperature: 0,
	}
	if structured {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call completion endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, string(snippet))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("completion error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (e *Extractor) systemPrompt(known string) string {
	var b strings.Builder
	b.WriteString("You extract trip report parameters from a user message. ")
	b.WriteString("Reply with a single JSON object and nothing else, using these keys:\n")
	b.WriteString(`  "categories": array of category codes mentioned, from: `)
	b.WriteString(strings.Join(e.vocab.CategoryNames(), ", "))
	b.WriteString("\n")
	b.WriteString(`  "areas": array of areas mentioned, from: `)
	b.WriteString(strings.Join(e.vocab.AreaNames(), ", "))
	b.WriteString("\n")
	b.WriteString(`  "period": the date expression exactly as the user wrote it, or null` + "\n")
	b.WriteString(`  "all_categories": true only if the user asked for all categories` + "\n")
	b.WriteString(`  "all_areas": true only if the user asked for all areas` + "\n")
	b.WriteString("Copy tokens from the message; do not invent values the user did not mention. ")
	b.WriteString("Omit a key or use an empty array when the message says nothing about it.")
	if known != "" {
		b.WriteString("\nAlready confirmed from earlier messages in this conversation: ")
		b.WriteString(known)
		b.WriteString("\nRead the message against that context; only extract values for the remaining keys.")
	}
	return b.String()
}

// partialContext serializes the already-valid filter fields for the
// prompt. An empty filter yields the empty string so the first turn
// carries no context block.
func partialContext(f filter.Filter) string {
	known := make(map[string]interface{})
	if len(f.Categories) > 0 {
		known["categories"] = f.CategoryNames()
	}
	if len(f.Areas) > 0 {
		known["areas"] = f.AreaNames()
	}
	if f.Period != nil {
		known["period"] = f.Period.Label()
	}
	if len(known) == 0 {
		return ""
	}
	encoded, err := json.Marshal(known)
	if err != nil {
		return ""
	}
	return string(encoded)
}

func (e *Extractor) fromCache(ctx context.Context, text, known string) (filter.Candidate, bool) {
	if e.cache == nil {
		return filter.Candidate{}, false
	}
	stored, err := e.cache.Get(ctx, e.cacheKey(text, known))
	if err != nil {
		return filter.Candidate{}, false
	}
	var c filter.Candidate
	if err := json.Unmarshal([]byte(stored), &c); err != nil {
		return filter.Candidate{}, false
	}
	return c, true
}

func (e *Extractor) toCache(ctx context.Context, text, known string, c filter.Candidate) {
	if e.cache == nil {
		return
	}
	encoded, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, e.cacheKey(text, known), string(encoded), config.GetSeconds(e.cfg.CacheTTL)); err != nil {
		e.logger.Debug("cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

// cacheKey hashes text together with the serialized session context, so
// the same words in differently advanced conversations never collide.
func (e *Extractor) cacheKey(text, known string) string {
	sum := sha256.Sum256([]byte(e.cfg.Model + "\x00" + strings.TrimSpace(strings.ToLower(text)) + "\x00" + known))
	return "nlu:candidate:" + hex.EncodeToString(sum[:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
