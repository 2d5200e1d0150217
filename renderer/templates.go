package renderer

import "embed"

// templates holds the markdown templates, assembly and partials alike.
//
//go:embed *.md
var templates embed.FS
