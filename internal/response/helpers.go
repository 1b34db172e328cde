package response

import "fmt"

// HTMLDocument wraps a body fragment in the minimal document every
// generated page uses.
func HTMLDocument(fragment string) string {
	return "<html><body>" + fragment + "</body></html>\r\n"
}

// ErrorBody is the local HTML body sent with an error status.
func ErrorBody(code StatusCode) string {
	return HTMLDocument(fmt.Sprintf("<h1>%d %s</h1>", code, StatusText(code)))
}

// HTMLResponse writes a complete HTML response in one write.
func (w *Writer) HTMLResponse(code StatusCode, fragment string) error {
	return w.writeWhole(code, HTMLDocument(fragment))
}

// ErrorResponse writes a standard error response in one write:
//
//	HTTP/1.0 404 Not Found\r\n\r\n<html><body><h1>404 Not Found</h1></body></html>\r\n
func (w *Writer) ErrorResponse(code StatusCode) error {
	return w.writeWhole(code, ErrorBody(code))
}
