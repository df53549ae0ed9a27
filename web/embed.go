// Package web embeds the operator console page. The console is a single
// static page talking to the admin JSON API; it is served only under the
// unlisted admin path.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed all:dist
var distFS embed.FS

// ConsoleHandler returns an http.Handler serving the embedded console.
func ConsoleHandler() http.Handler {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return http.FileServer(http.FS(subFS))
}
