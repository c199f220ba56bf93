// Package session houses concrete implementations of core.SessionStore.
// The interface and the Session record live in core so the runner never
// depends on a concrete backend. Add further backends in sub-packages; only
// the wiring layer decides which one to instantiate.
package session
