// Package llm provides an OpenAI compatible chat completion client used by the
// research, dialogue and transform stages.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send system/user prompts with a per-request model.
// Client.CompleteJSON: JSON-mode completion decoded into a target value.
// Client.HealthCheck: verify API key and model availability.
//
// # Error Classification
//
// Every error returned by Complete carries a services marker: 429 responses are
// ErrRateLimited (wrapped in services.RetryAfterError when the provider sends
// Retry-After), 408/5xx, empty completions and network failures are
// ErrTransient or ErrTimeout, 401/402/403 are ErrConfiguration, and other 4xx
// responses and refusals are ErrRejected.
//
// # Retry Behaviour
//
// The client tries once by default; the pipeline owns stage-level retry so the
// single-flight cache sees one outcome per attempt. WithRetryMaxAttempts turns
// on in-client retry with exponential backoff for standalone callers.
package llm
