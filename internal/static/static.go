package static

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Brownie44l1/mdb-httpd/internal/logger"
	"github.com/Brownie44l1/mdb-httpd/internal/response"
	"github.com/Brownie44l1/mdb-httpd/internal/server"
)

// DefaultChunkSize is how much of a file goes out per write.
const DefaultChunkSize = 4096

// Handler serves files below Root. The request path has already been
// validated, so it starts with "/" and holds no ".." segment.
type Handler struct {
	Root      string
	ChunkSize int
}

// New creates a static handler for root.
func New(root string, chunkSize int) *Handler {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Handler{Root: root, ChunkSize: chunkSize}
}

// Resolve joins the web root and the request path without cleaning it.
func (h *Handler) Resolve(path string) string {
	return h.Root + filepath.FromSlash(path)
}

func (h *Handler) ServeHTTP(ctx *server.Context) {
	path := h.Resolve(ctx.Path())

	info, err := os.Stat(path)
	if err != nil {
		ctx.Error(response.StatusNotFound)
		return
	}

	if info.IsDir() {
		// Only a URI without the trailing slash lands here as 403. With the
		// slash, index.html was appended and is itself a directory.
		if !strings.HasSuffix(ctx.URI(), "/") {
			ctx.Error(response.StatusForbidden)
		} else {
			ctx.Error(response.StatusNotFound)
		}
		return
	}

	f, err := os.Open(path)
	if err != nil {
		ctx.Error(response.StatusNotFound)
		return
	}
	defer f.Close()

	if err := ctx.Status(response.StatusOK); err != nil {
		return
	}

	n, err := h.copy(ctx.Response, f)
	if err != nil {
		ctx.Logger.Debug("static transfer aborted",
			logger.F("path", path),
			logger.F("sent", n),
			logger.F("error", err),
		)
	}
}

// copy streams src to w in ChunkSize pieces using a pooled buffer.
func (h *Handler) copy(w *response.Writer, src io.Reader) (int64, error) {
	size := h.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := server.GetBuffer(size)
	defer server.PutBuffer(buf)

	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if werr := w.WriteBody(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
