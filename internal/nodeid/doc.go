// internal/nodeid/doc.go

/*
Package nodeid provides a structured, type-safe representation for the
addresses used throughout a pipeline definition, based on the canonical
format `kind.name[.attr]`.

Examples:

	base.devel             the development base
	toolchain.rust         a build-only toolchain
	stage.worker           a build stage
	stage.worker.launcher  the `launcher` artifact of the worker stage
	compose.gpu-node       a final composition

The same addresses identify graph nodes, artifact records and HCL references,
so every package formats and parses them through this one place.
*/
package nodeid
