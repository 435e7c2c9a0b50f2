// Package web holds the page templates and static assets compiled into the
// binary.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates
var templates embed.FS

//go:embed static
var static embed.FS

// Templates is rooted at the templates directory.
func Templates() fs.FS {
	sub, _ := fs.Sub(templates, "templates")
	return sub
}

// Static is rooted at the static directory.
func Static() fs.FS {
	sub, _ := fs.Sub(static, "static")
	return sub
}
