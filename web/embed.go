package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.gohtml
var templates embed.FS

//go:embed static
var static embed.FS

// TemplateFS holds the page templates of the hub.
var TemplateFS, _ = fs.Sub(templates, "templates")

// StaticFS holds the scripts and stylesheets used by the pages.
var StaticFS, _ = fs.Sub(static, "static")
