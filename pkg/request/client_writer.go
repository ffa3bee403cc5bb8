package request

import "net/http"

// ClientWriter wraps a http.ResponseWriter and records the status code that
// was written so that middleware can report it after the handler has run.
type ClientWriter struct {
	http.ResponseWriter

	// statusCode is the status code that was written to the client.
	statusCode int
}

// NewClientWriter creates a new ClientWriter.
func NewClientWriter(w http.ResponseWriter) *ClientWriter {
	return &ClientWriter{
		ResponseWriter: w,
	}
}

// WriteHeader writes the status code to the client.
func (w *ClientWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write writes the body to the client. If no status code has been written yet,
// a 200 is recorded, matching the behaviour of the underlying writer.
func (w *ClientWriter) Write(body []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	return w.ResponseWriter.Write(body)
}

// StatusCode returns the status code that was written to the client.
func (w *ClientWriter) StatusCode() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}
