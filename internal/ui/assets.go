package ui

import (
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-contrib/static"
)

type assetFS struct {
	http.FileSystem
}

// Exists reports whether urlPath, below prefix, names an embedded file.
// Directories are not served.
func (a assetFS) Exists(prefix string, urlPath string) bool {
	name, ok := strings.CutPrefix(urlPath, prefix)
	if !ok {
		return false
	}
	f, err := a.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	return err == nil && !info.IsDir()
}

// StaticFS serves the embedded stylesheet and script.
func StaticFS() static.ServeFileSystem {
	sub, err := fs.Sub(Assets, AssetsRoot)
	if err != nil {
		panic(err)
	}
	return assetFS{FileSystem: http.FS(sub)}
}
