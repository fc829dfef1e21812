// Package ui embeds the session status page served by the HTTP server.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed static
var assets embed.FS

// static is the asset tree without the "static/" prefix.
var static = mustSub(assets, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// FS returns the status page assets.
func FS() http.FileSystem { return http.FS(static) }

// Handler serves the page under prefix, which must end in "/". Requests for
// the bare prefix without the slash are redirected.
func Handler(prefix string) http.Handler {
	base := strings.TrimSuffix(prefix, "/")
	files := http.StripPrefix(base, http.FileServer(FS()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == base {
			http.Redirect(w, r, base+"/", http.StatusMovedPermanently)
			return
		}
		files.ServeHTTP(w, r)
	})
}
