// Package agent declares pipeline trees and executes them.
//
// A tree is built from four node kinds:
//
//  1. LLMAgent: a leaf wrapping a model, a typed instruction template,
//     optional tools and an optional output key
//  2. Sequential: runs its children in order on shared state
//  3. Parallel: runs its children concurrently on isolated state snapshots
//     and merges their writes in child order
//  4. Loop: runs its children as a sequential body until a tool requests
//     Stop or MaxIterations passes complete
//
// Node is a closed set. Validate checks a tree statically (names, reuse,
// causal availability of template keys, parallel output collisions, exit
// tool placement) and Execute drives it against a core.RunContext. Agents
// hand results to each other only through state.
package agent
