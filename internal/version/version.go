// Package version holds the build version reported by each binary's
// --version flag.
package version

import "github.com/blang/semver"

// Current is the build version for the rendezvous/agent/keygen
// binaries.
var Current = semver.MustParse("0.1.0")
