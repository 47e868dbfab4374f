// Package pipeline resolves a loaded model into stage plans and lays the
// stages out as a graph for one composition and one target.
//
// Resolution happens once per invocation: each stage's `arguments` body is
// decoded into the input of the handler registered for its kind, the handler
// returns the stage plan, and the artifact rules that span stages are
// checked. A Layout then names the graph nodes a target needs; backends bind
// a task to each node.
package pipeline
