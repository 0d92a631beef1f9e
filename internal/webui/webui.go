// Package webui embeds the block-weight curve editor served next to the API.
package webui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFS embed.FS

// FS returns the editor assets rooted at the static directory.
func FS() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The embed path is fixed at build time.
		panic(err)
	}
	return sub
}

// Handler serves the editor assets.
func Handler() http.Handler {
	return http.FileServer(http.FS(FS()))
}
