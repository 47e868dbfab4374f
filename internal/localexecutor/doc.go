// Package localexecutor builds a pipeline on the local filesystem.
//
// Every node of a pipeline.Layout becomes a task on a dag.Executor. Bases
// provision into their own root, container stages copy their base root into
// a private one and appliance stages share the root being assembled. The
// final filesystem is staged inside the output directory and published only
// after every verification passed.
package localexecutor
