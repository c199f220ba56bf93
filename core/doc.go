// Package core provides the foundational domain types and execution contexts
// shared by every agentpipe package:
//
//   - Events and role-based Content (the step records a run produces)
//   - State (the ordered, run-scoped key/value handoff between agents)
//   - RunContext / ToolContext (scoped execution and tool sandboxing)
//   - Control (the explicit continue/stop signal returned by pipeline steps)
//   - Session / SessionStore (the in-memory record of a run)
//
// Concrete agents, models and runners live in their own packages and depend on
// core, never the other way around.
package core
