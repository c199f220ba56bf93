// Package retry implements the retry contract used by every remote model
// call: a Policy (attempts, exponential base, initial/max delay, jitter and
// retryable status codes) and an http.RoundTripper applying it. Only the
// configured statuses are retried; a transport error fails the call at once.
//
// The transport is handed to the provider SDKs through NewClient so retries
// happen below the SDK, regardless of whether the SDK offers its own knobs.
package retry
