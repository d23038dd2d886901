package panel

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
)

//go:embed web/*
var content embed.FS

// Options configures Handler.
type Options struct {
	// Dir serves assets from disk when it names an existing directory.
	// Empty uses the embedded page.
	Dir string

	// WebSocketPath is the upgrade path the page connects to.
	WebSocketPath string
}

// clientConfig is served as config.json for the page's script.
type clientConfig struct {
	WebSocketPath string `json:"ws_path"`
	ZonesURL      string `json:"zones_url"`
}

// Handler returns the display page handler. Unknown paths fall back to
// index.html. Panics if the embedded assets are missing (build error).
func Handler(opts Options) http.Handler {
	var fileSystem http.FileSystem
	if opts.Dir != "" {
		if info, err := os.Stat(opts.Dir); err == nil && info.IsDir() {
			fileSystem = http.Dir(opts.Dir)
		}
	}
	if fileSystem == nil {
		webFS, err := fs.Sub(content, "web")
		if err != nil {
			panic(fmt.Sprintf("panel: failed to load embedded web assets: %v", err))
		}
		fileSystem = http.FS(webFS)
	}

	wsPath := opts.WebSocketPath
	if wsPath == "" {
		wsPath = "/ws"
	}
	cfg, err := json.Marshal(clientConfig{WebSocketPath: wsPath, ZonesURL: "/api/v1/zones"})
	if err != nil {
		panic(fmt.Sprintf("panel: encoding client config: %v", err))
	}

	fileServer := http.FileServer(fileSystem)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		upath := path.Clean("/" + r.URL.Path)
		switch upath {
		case "/config.json":
			w.Header().Set("Content-Type", "application/json")
			w.Write(cfg) //nolint:errcheck // client went away
			return
		case "/":
			fileServer.ServeHTTP(w, r)
			return
		}

		f, err := fileSystem.Open(upath[1:])
		if err != nil {
			r.URL.Path = "/"
			fileServer.ServeHTTP(w, r)
			return
		}
		f.Close()
		fileServer.ServeHTTP(w, r)
	})
}
