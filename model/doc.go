// Package model defines the provider-agnostic abstractions for talking to
// language models inside agentpipe.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Normalize tool declarations (ToolDefinition) including provider builtins
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic scripting for tests (MockModel)
//
// Providers live in sub-packages (gemini, openai, anthropic) and the
// provider package selects one from explicit configuration.
package model
