package pages

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed assets/*.html
var assets embed.FS

// File names of the fixed views. A file with the same name under the
// static root replaces the embedded default.
const (
	IndexFile   = "index.html"
	MessageFile = "message.html"
	ErrorFile   = "error.html"
)

// Pages holds the three fixed HTML views, loaded once at startup.
type Pages struct {
	Index   []byte
	Message []byte
	Error   []byte
}

// Load reads the views from root, falling back to the embedded defaults.
func Load(root string) (*Pages, error) {
	var p Pages
	for _, v := range []struct {
		name string
		dst  *[]byte
	}{
		{IndexFile, &p.Index},
		{MessageFile, &p.Message},
		{ErrorFile, &p.Error},
	} {
		b, err := load(root, v.name)
		if err != nil {
			return nil, err
		}
		*v.dst = b
	}
	return &p, nil
}

// Default returns the embedded views.
func Default() *Pages {
	p, err := Load("")
	if err != nil {
		// embedded assets are compiled in
		panic(err)
	}
	return p
}

func load(root, name string) ([]byte, error) {
	if root != "" {
		b, err := os.ReadFile(filepath.Join(root, name))
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load page %s: %w", name, err)
		}
	}
	return assets.ReadFile("assets/" + name)
}
