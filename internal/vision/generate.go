package vision

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// generate performs one logical model call: each attempt runs under its own
// timeout, and failed attempts back off exponentially (1s doubling) until the
// attempt budget or the caller's context runs out.
func generate(ctx context.Context, model llms.Model, parts []llms.ContentPart, timeout time.Duration, attempts int) (string, error) {
	msg := []llms.MessageContent{{Role: schema.ChatMessageTypeHuman, Parts: parts}}

	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := model.GenerateContent(callCtx, msg, llms.WithTemperature(0))
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("model returned no choices")
			continue
		}
		return resp.Choices[0].Content, nil
	}
	return "", fmt.Errorf("model call failed after %d attempts: %w", attempts, lastErr)
}
