// Package registry holds the Go handlers that give each stage kind its
// semantics. Modules register themselves at startup; the pipeline resolver
// looks handlers up by the `kind` attribute of a stage block.
package registry
