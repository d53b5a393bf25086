// Package bundled ships the recipes compiled into the binary. They form the
// package-embedded discovery tier and can be overridden by any on-disk recipe
// with the same name.
package bundled

import "embed"

//go:embed *.yaml
var FS embed.FS
