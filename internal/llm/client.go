// Package llm provides text-generation clients for the research digest bot.
//
// The package defines a provider-agnostic Client interface plus the prompt
// library used for query construction, section and paper summaries, and the
// final digest narrative. OpenAI and Anthropic implementations are provided;
// both speak plain HTTP so they can be pointed at test servers.
package llm

import (
	"context"
	"fmt"
	"net/http"
)

// Request is a single generation request.
type Request struct {
	// System is the system prompt (may be empty).
	System string

	// User is the user prompt.
	User string

	// JSONResponse asks the provider for a JSON object response where the
	// provider supports enforcing it.
	JSONResponse bool
}

// Response is the result of a generation request.
type Response struct {
	// Content is the generated text.
	Content string

	// Model is the model that produced the response.
	Model string

	// InputTokens is the number of prompt tokens consumed.
	InputTokens int

	// OutputTokens is the number of completion tokens produced.
	OutputTokens int
}

// Client defines the interface for text-generation providers.
//
// Implementations should respect context cancellation, return wrapped errors
// with provider context, and treat an empty completion as an error.
type Client interface {
	// Complete sends a generation request and returns the completion.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Provider returns the name of the LLM provider (e.g., "openai", "anthropic").
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}

// APIError represents an error returned by an LLM provider API.
type APIError struct {
	// Provider is the name of the LLM provider (e.g., "openai", "anthropic").
	Provider string
	// StatusCode is the HTTP status code returned by the API.
	StatusCode int
	// Message is the error message from the API.
	Message string
	// Type is the error type classification from the API.
	Type string
	// Code is the provider-specific error code (if available).
	Code string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient returns true if the error is a transient error that may succeed
// on retry. This includes rate limiting (429), server errors (5xx), and network
// errors (StatusCode 0 indicates no HTTP response was received).
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// isTransientError reports whether err is an APIError worth retrying.
func isTransientError(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.IsTransient()
}
