package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/shiftwise/shiftwise/internal/provider"
)

// mapError classifies an SDK error into a provider sentinel. Context
// errors and non-API errors pass through so callers can still tell a
// cancelled run from a failing backend.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *sdkanthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	if sentinel := sentinelFor(apiErr); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, apiErr.Error())
	}

	switch apiErr.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("anthropic bad request: %w", err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("anthropic auth error (HTTP %d): %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("anthropic error (HTTP %d): %w", apiErr.StatusCode, err)
}

// sentinelFor picks the provider sentinel for an API error, or nil when
// the error has no sentinel classification.
func sentinelFor(apiErr *sdkanthropic.Error) error {
	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		return provider.ErrRateLimit
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, 529:
		// 529 is Anthropic's "overloaded" status.
		return provider.ErrProviderDown
	case http.StatusBadRequest:
		if isContextLengthError(apiErr.RawJSON()) {
			return provider.ErrContextLength
		}
	}
	return nil
}

var contextLengthMarkers = []string{"context length", "too many tokens", "token limit"}

// isContextLengthError reports whether a 400 response body is about
// exceeding the model's context window. When the body parses, the error
// type is required to be invalid_request_error; otherwise raw substring
// matching is the fallback.
func isContextLengthError(raw string) bool {
	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	haystack := raw
	if err := json.Unmarshal([]byte(raw), &body); err == nil {
		if body.Error.Type != "invalid_request_error" {
			return false
		}
		haystack = body.Error.Message
	}

	for _, marker := range contextLengthMarkers {
		if strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}
