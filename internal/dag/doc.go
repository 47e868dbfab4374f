// Package dag is the execution layer of the pipeline. It holds the directed
// acyclic graph of build nodes and runs it on a bounded worker pool: a node
// starts as soon as its last dependency finished, the first failure cancels
// the run and skips everything downstream of it, and resources acquired
// during the run are released through a Scope when the run ends.
package dag
