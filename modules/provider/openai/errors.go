package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/flemzord/coauthor/internal/provider"
)

// mapError maps an error returned by the OpenAI client to a provider
// sentinel error. Context errors pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, goopenai.ErrCompletionUnsupportedModel) {
		return fmt.Errorf("%w: %w", provider.ErrUnsupportedModel, err)
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return mapStatus(apiErr.HTTPStatusCode, apiErr.Message, apiErr.Code)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		msg := strings.TrimSpace(string(reqErr.Body))
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return mapStatus(reqErr.HTTPStatusCode, msg, nil)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return fmt.Errorf("openai: %w", err)
}

// mapStatus maps an HTTP status and error message to a sentinel error.
func mapStatus(status int, msg string, code any) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", provider.ErrRateLimit, msg)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", provider.ErrAuth, msg)
	case status == http.StatusBadRequest && isContextLength(msg, code):
		return fmt.Errorf("%w: %s", provider.ErrContextLength, msg)
	case status >= 500:
		return fmt.Errorf("%w: %s", provider.ErrProviderDown, msg)
	default:
		return fmt.Errorf("openai: HTTP %d: %s", status, msg)
	}
}

func isContextLength(msg string, code any) bool {
	if c, ok := code.(string); ok && c == "context_length_exceeded" {
		return true
	}
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "context_length") || strings.Contains(lower, "maximum context length")
}
