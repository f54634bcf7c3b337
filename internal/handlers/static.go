package handlers

import (
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const defaultContentType = "text/plain; charset=utf-8"

// Page answers with a fixed HTML view.
func Page(status int, body []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(status, "text/html; charset=utf-8", body)
	}
}

// Static serves files below one root directory.
type Static struct {
	root      *os.Root
	errorPage []byte
	log       zerolog.Logger
}

// NewStatic opens dir as the static root. Lookups can never leave it,
// symlinks included.
func NewStatic(dir string, errorPage []byte, log zerolog.Logger) (*Static, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	return &Static{root: root, errorPage: errorPage, log: log}, nil
}

// Close releases the root directory handle.
func (s *Static) Close() error {
	return s.root.Close()
}

// Serve streams the file named by the request path, or answers 404 with the
// error page. Unexpected I/O errors map to 500.
func (s *Static) Serve(c *gin.Context) {
	name, ok := localName(c.Request.URL.Path)
	if !ok {
		s.notFound(c)
		return
	}

	f, err := s.root.Open(filepath.FromSlash(name))
	if errors.Is(err, fs.ErrNotExist) {
		s.notFound(c)
		return
	}
	if err != nil {
		s.fail(c, name, err)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		s.fail(c, name, err)
		return
	}
	if !st.Mode().IsRegular() {
		s.notFound(c)
		return
	}

	c.Header("Content-Type", ContentType(name))
	http.ServeContent(c.Writer, c.Request, st.Name(), st.ModTime(), f)
}

func (s *Static) notFound(c *gin.Context) {
	c.Data(http.StatusNotFound, "text/html; charset=utf-8", s.errorPage)
}

func (s *Static) fail(c *gin.Context, name string, err error) {
	s.log.Error().Err(err).Str("file", name).Msg("static file failed")
	c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// localName maps a URL path to a slash-separated name relative to the root.
// It reports false for the root itself and for anything escaping it.
func localName(urlPath string) (string, bool) {
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" || !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", false
	}
	return name, true
}

// ContentType infers the type from the extension, defaulting to plain text.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ct != "" {
		return ct
	}
	return defaultContentType
}
