// Package schemas provides the built-in OTG API descriptions embedded at
// compile time, one directory per supported version.
package schemas

import "embed"

// FS contains the built-in schema artifacts. Versions below 1.28.0 are not
// supported and are not shipped. Access artifacts via
// FS.ReadFile("1_30_0/openapi.yaml"), etc.
//
//go:embed */openapi.yaml
var FS embed.FS
