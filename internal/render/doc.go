// Package render turns a resolved pipeline into text other tools build from:
// a multi-stage Dockerfile for the container target and a bash provisioning
// script for the appliance target. Both are rendered from the same plans the
// local executor runs, with ROOT set to the empty string so every rooted
// path addresses "/".
package render
