package htdocs

import (
	"embed"
	"io/fs"
)

//go:embed index.html app.js style.css
var static embed.FS

func FS() fs.FS {
	return &static
}
