// Package gemini is a thin client for the Gemini image generation REST API.
//
// ApplyStyle and Refine each send one source image plus a text instruction
// to models/{model}:generateContent and return the first inline image of the
// first candidate. Lost or invalid API keys surface as ErrReauthRequired so
// the UI can prompt for a new key. Retries are opt-in via WithRetryMaxAttempts.
package gemini
