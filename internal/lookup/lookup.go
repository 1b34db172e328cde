package lookup

import (
	"context"
	"html"

	"github.com/Brownie44l1/mdb-httpd/internal/logger"
	"github.com/Brownie44l1/mdb-httpd/internal/mdb"
	"github.com/Brownie44l1/mdb-httpd/internal/response"
	"github.com/Brownie44l1/mdb-httpd/internal/router"
	"github.com/Brownie44l1/mdb-httpd/internal/server"
)

// FormHTML is the search form shown on both lookup pages.
const FormHTML = "<h1>mdb-lookup</h1>\n" +
	"<p>\n" +
	"<form method=GET action=/mdb-lookup>\n" +
	"lookup: <input type=text name=key>\n" +
	"<input type=submit>\n" +
	"</form>\n" +
	"<p>\n"

const (
	tableOpen  = "\r\n<p><table border>\r\n"
	rowOpen    = "<tr><td>"
	rowClose   = "\r\n"
	tableClose = "</table></body></html>\r\n"
)

// Backend runs one key exchange against the lookup service.
type Backend interface {
	Lookup(ctx context.Context, key string) (*mdb.Rows, error)
}

// Form serves the empty search form. It never touches the backend.
func Form() server.Handler {
	return server.HandlerFunc(func(ctx *server.Context) {
		ctx.HTML(response.StatusOK, FormHTML)
	})
}

// Query looks up the key carried in the URI and streams the matching
// rows as an HTML table, one row per write.
func Query(backend Backend) server.Handler {
	return server.HandlerFunc(func(ctx *server.Context) {
		key := router.KeyFromURI(ctx.Path())
		ctx.SetLookupKey(key)

		rows, err := backend.Lookup(ctx.Context(), key)
		if err != nil {
			ctx.Logger.Error("backend lookup failed",
				logger.F("key", key),
				logger.F("error", err),
			)
			ctx.Error(response.StatusBadGateway)
			return
		}
		defer rows.Close()

		if err := ctx.Status(response.StatusOK); err != nil {
			return
		}
		if err := ctx.WriteString("<html><body>" + FormHTML + tableOpen); err != nil {
			return
		}

		for rows.Next() {
			if err := ctx.WriteString(rowOpen + html.EscapeString(rows.Text()) + rowClose); err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			// Headers are out; all that is left is to cut the page short.
			ctx.Logger.Warn("backend result cut short",
				logger.F("key", key),
				logger.F("rows", rows.Count()),
				logger.F("error", err),
			)
			return
		}

		ctx.WriteString(tableClose)
	})
}
