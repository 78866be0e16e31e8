// Package script expands package.json scripts into executable steps.
//
// A logical script name such as "build" expands to the "prebuild", "build"
// and "postbuild" entries, in that order. Each entry is split on top-level
// "&&" into separate steps, and "npm run <name>" references are inlined.
// Extraction never fails: a missing script or a malformed command line
// yields no steps.
package script
