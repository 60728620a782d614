package handlers

import (
	"net/http"
	"os"
	"path/filepath"
)

const liffPage = "liff-app.html"

// StaticEnabled reports whether the configured asset directory exists.
func (api *API) StaticEnabled() bool {
	if api.staticDir == "" {
		return false
	}
	info, err := os.Stat(api.staticDir)
	return err == nil && info.IsDir()
}

func (api *API) LIFF(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(api.staticDir, liffPage))
}

func (api *API) Static() http.Handler {
	return http.FileServer(http.Dir(api.staticDir))
}
