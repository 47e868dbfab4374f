// Package compose assembles the final filesystem of a composition and checks
// it before release.
//
// Only artifacts recorded by build stages and static files from the build
// context are copied in. The policy scan then walks the whole root and
// rejects toolchain paths, package manager caches and, for container images,
// compiler binaries. The appliance helpers register the launcher as a
// systemd service and write the login profile hook.
package compose
