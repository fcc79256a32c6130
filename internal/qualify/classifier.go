// Package qualify turns fetched page content into a structured qualification
// verdict: one model call per company, then a strict mapping onto the active
// profile's result columns.
package qualify

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/icp-qualifier/internal/config"
	"github.com/sells-group/icp-qualifier/pkg/anthropic"
)

// Classifier calls the model with a prompt and optional screenshot and
// parses the JSON verdict. Rate limits and transient API failures retry
// independently: rate limits back off long, transient errors short.
type Classifier struct {
	client           anthropic.Client
	model            string
	maxTokens        int64
	rateRetries      int
	rateWait         time.Duration
	transientRetries int
	transientWait    time.Duration
}

// NewClassifier builds a Classifier from the model config.
func NewClassifier(client anthropic.Client, cfg config.AnthropicConfig) *Classifier {
	return &Classifier{
		client:           client,
		model:            cfg.Model,
		maxTokens:        int64(cfg.MaxTokens),
		rateRetries:      cfg.MaxRetries,
		rateWait:         time.Duration(cfg.RetryWaitSecs) * time.Second,
		transientRetries: cfg.TransientRetries,
		transientWait:    time.Duration(cfg.TransientWaitSecs) * time.Second,
	}
}

// Classify sends one classification request and returns the parsed JSON
// object. screenshotB64 may be empty. Invalid JSON from the model is a
// terminal error, never retried.
func (c *Classifier) Classify(ctx context.Context, companyName, prompt, screenshotB64 string) (map[string]any, error) {
	var parts []anthropic.ContentPart
	if screenshotB64 != "" {
		parts = append(parts, anthropic.ImagePart("image/jpeg", screenshotB64))
	}
	parts = append(parts, anthropic.TextPart(prompt))

	req := anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.Message{
			{Role: "user", Content: parts},
		},
	}

	rateAttempts, transientAttempts := 0, 0
	for {
		resp, err := c.client.CreateMessage(ctx, req)
		if err == nil {
			result, perr := parseModelJSON(anthropic.Text(resp))
			if perr != nil {
				return nil, perr
			}
			resp.Usage.LogCost(c.model, companyName)
			return result, nil
		}

		if ctx.Err() != nil {
			return nil, err
		}

		var wait time.Duration
		switch {
		case anthropic.IsRateLimit(err):
			rateAttempts++
			if rateAttempts >= c.rateRetries {
				return nil, eris.Wrapf(err, "qualify: rate limited after %d attempts", rateAttempts)
			}
			wait = c.rateWait
			zap.L().Warn("qualify: rate limit hit, backing off",
				zap.String("company", companyName),
				zap.Duration("wait", wait),
			)
		case anthropic.IsTransient(err):
			transientAttempts++
			if transientAttempts >= c.transientRetries {
				return nil, eris.Wrapf(err, "qualify: model call failed after %d attempts", transientAttempts)
			}
			wait = c.transientWait
			zap.L().Warn("qualify: transient model error, retrying",
				zap.String("company", companyName),
				zap.Int("attempt", transientAttempts),
				zap.Error(err),
			)
		default:
			return nil, eris.Wrap(err, "qualify: model call")
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

var (
	fenceOpen  = regexp.MustCompile("^```(?:json)?\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
)

// parseModelJSON strips an optional markdown code fence and parses the rest
// strictly. Anything but a single JSON object is an error.
func parseModelJSON(text string) (map[string]any, error) {
	t := strings.TrimSpace(text)
	t = fenceOpen.ReplaceAllString(t, "")
	t = fenceClose.ReplaceAllString(t, "")

	var out map[string]any
	if err := json.Unmarshal([]byte(t), &out); err != nil {
		zap.L().Warn("qualify: model returned invalid JSON",
			zap.Int("length", len(text)),
		)
		return nil, eris.Wrap(err, "qualify: parse model response")
	}
	return out, nil
}
