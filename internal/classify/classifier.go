// Package classify turns payee names into Business/Individual verdicts using
// the Anthropic Messages API, one name per request or batched through the
// Message Batches API.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/payee-cli/internal/model"
	"github.com/sells-group/payee-cli/pkg/anthropic"
)

const (
	DefaultModel     = "claude-haiku-4-5-20251001"
	DefaultMaxTokens = 1024
)

const systemPrompt = `You classify payee names from accounting records as either a business or an individual person.

Respond with a JSON object and nothing else:
{"classification": "Business" or "Individual", "confidence": 0-100, "reasoning": "one sentence"}

Business indicators: legal suffixes (LLC, Inc, Corp), trade words, service descriptions, government agencies.
Individual indicators: first and last name patterns, honorifics, no business vocabulary.
When genuinely ambiguous, pick the more likely class and lower the confidence.`

// Config tunes the classifier.
type Config struct {
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// Classifier calls the Anthropic API to classify payee names.
type Classifier struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
}

// New builds a Classifier. Zero config fields fall back to defaults.
func New(client anthropic.Client, cfg Config) *Classifier {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	return &Classifier{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

// ClassifyName classifies a single payee name with one API call.
func (c *Classifier) ClassifyName(ctx context.Context, name string) (model.ClassificationResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return model.ClassificationResult{}, eris.Wrap(err, "classify: rate limit wait")
	}

	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages: []anthropic.Message{
			{Role: "user", Content: buildUserMessage(name)},
		},
	})
	if err != nil {
		return model.ClassificationResult{}, eris.Wrapf(err, "classify: name %q", name)
	}
	resp.Usage.LogCost(c.model, "classify_single")

	result, err := parseVerdict(resp.Text())
	if err != nil {
		return model.ClassificationResult{}, eris.Wrapf(err, "classify: name %q", name)
	}
	return result, nil
}

// ClassifyBatch classifies queue items through the Message Batches API. A
// primer request warms the prompt cache before the batch is submitted.
// Results are keyed by each item's original row index; items whose batch
// entry failed are absent from the map.
func (c *Classifier) ClassifyBatch(ctx context.Context, items []model.QueueItem) (map[int]model.ClassificationResult, error) {
	out := make(map[int]model.ClassificationResult)
	if len(items) == 0 {
		return out, nil
	}

	system := anthropic.CachedSystem(systemPrompt)

	primer, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildUserMessage(items[0].Name)},
		},
	})
	if err != nil {
		zap.L().Debug("primer request failed", zap.Error(err))
	} else {
		primer.Usage.LogCost(c.model, "classify_primer")
	}

	reqs := make([]anthropic.BatchRequestItem, len(items))
	for i, item := range items {
		reqs[i] = anthropic.BatchRequestItem{
			CustomID: customID(item.OriginalIndex),
			Params: anthropic.MessageRequest{
				Model:     c.model,
				MaxTokens: c.maxTokens,
				System:    system,
				Messages: []anthropic.Message{
					{Role: "user", Content: buildUserMessage(item.Name)},
				},
			},
		}
	}

	batch, err := c.client.CreateBatch(ctx, anthropic.BatchRequest{Requests: reqs})
	if err != nil {
		return nil, eris.Wrap(err, "classify: create batch")
	}
	zap.L().Info("classification batch submitted",
		zap.String("batch_id", batch.ID),
		zap.Int("items", len(items)),
	)

	if _, err := anthropic.PollBatch(ctx, c.client, batch.ID); err != nil {
		return nil, eris.Wrap(err, "classify: await batch")
	}

	iter, err := c.client.GetBatchResults(ctx, batch.ID)
	if err != nil {
		return nil, eris.Wrap(err, "classify: batch results")
	}
	responses, err := anthropic.CollectBatchResults(iter)
	if err != nil {
		return nil, err
	}

	var usage anthropic.TokenUsage
	for id, resp := range responses {
		idx, err := indexFromCustomID(id)
		if err != nil {
			zap.L().Warn("unknown custom_id in batch results", zap.String("custom_id", id))
			continue
		}
		usage.Add(resp.Usage)

		result, err := parseVerdict(resp.Text())
		if err != nil {
			zap.L().Warn("unparseable classification verdict",
				zap.String("custom_id", id),
				zap.Error(err),
			)
			continue
		}
		out[idx] = result
	}
	usage.LogCost(c.model, "classify_batch")

	return out, nil
}

func buildUserMessage(name string) string {
	return fmt.Sprintf("Classify this payee name: %q", name)
}

func customID(index int) string {
	return fmt.Sprintf("payee-%d", index)
}

func indexFromCustomID(id string) (int, error) {
	rest, ok := strings.CutPrefix(id, "payee-")
	if !ok {
		return 0, eris.Errorf("classify: malformed custom_id %q", id)
	}
	idx, err := strconv.Atoi(rest)
	if err != nil {
		return 0, eris.Wrapf(err, "classify: malformed custom_id %q", id)
	}
	return idx, nil
}

// parseVerdict decodes a model response into a ClassificationResult. Markdown
// fences are stripped first; if the payload still is not JSON, a keyword scan
// of the raw text is the fallback.
func parseVerdict(text string) (model.ClassificationResult, error) {
	cleaned := cleanJSON(text)

	var raw struct {
		Classification string  `json:"classification"`
		Confidence     float64 `json:"confidence"`
		Reasoning      string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err == nil && raw.Classification != "" {
		result := model.ClassificationResult{
			Confidence:     raw.Confidence,
			Reasoning:      raw.Reasoning,
			ProcessingTier: model.TierAI,
		}
		switch strings.ToLower(strings.TrimSpace(raw.Classification)) {
		case "business":
			result.Classification = model.ClassificationBusiness
		case "individual":
			result.Classification = model.ClassificationIndividual
		default:
			return model.ClassificationResult{}, eris.Errorf("classify: unknown classification %q", raw.Classification)
		}
		return result, nil
	}

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "individual"):
		return model.ClassificationResult{
			Classification: model.ClassificationIndividual,
			Confidence:     50,
			Reasoning:      "Recovered from non-JSON response",
			ProcessingTier: model.TierAI,
		}, nil
	case strings.Contains(lower, "business"):
		return model.ClassificationResult{
			Classification: model.ClassificationBusiness,
			Confidence:     50,
			Reasoning:      "Recovered from non-JSON response",
			ProcessingTier: model.TierAI,
		}, nil
	}
	return model.ClassificationResult{}, eris.Errorf("classify: unparseable verdict %q", text)
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
