// Package scripts embeds the Risor kernel analyzer scripts shipped with
// cellscope. Each script lives at kernel/<family>.risor and is run once per
// cell of that kernel family.
package scripts

import "embed"

// FS holds kernel/*.risor.
//
//go:embed kernel/*.risor
var FS embed.FS
