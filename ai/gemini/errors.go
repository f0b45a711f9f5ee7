package gemini

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/poiesic/dataroom/ai"
	"google.golang.org/genai"
)

// classifyError maps genai API errors onto the ai error kinds by status code,
// falling back to message inspection for transport errors.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyAPIError(*apiErrPtr, err)
	}
	return ai.Classify(err)
}

func classifyAPIError(apiErr genai.APIError, err error) error {
	switch {
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", ai.ErrAuth, err)
	case apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "api key"):
		return fmt.Errorf("%w: %w", ai.ErrAuth, err)
	case apiErr.Code == http.StatusTooManyRequests:
		return &ai.RateLimitError{Err: err}
	case apiErr.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ai.ErrProviderConfig, err)
	case apiErr.Code == http.StatusRequestTimeout || apiErr.Code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", ai.ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ai.ErrProvider, err)
	}
}
