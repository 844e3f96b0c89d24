package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

// ErrTokenLimit marks a request rejected because the prompt does not fit
// the model's token budget.
var ErrTokenLimit = errors.New("token limit exceeded")

var tokenLimitPhrases = []string{
	"too many tokens",
	"prompt is too long",
	"exceeds the maximum context",
}

func classify(err error) error {
	if err == nil || errors.Is(err, ErrTokenLimit) {
		return err
	}
	if isTokenLimit(err) {
		return fmt.Errorf("%w: %w", ErrTokenLimit, err)
	}
	return err
}

func isTokenLimit(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range tokenLimitPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTokenLimit reports whether err was classified as a token-limit failure.
func IsTokenLimit(err error) bool {
	return errors.Is(err, ErrTokenLimit)
}
