package devserver

import "fmt"

// TransportError reports a fatal serving failure: a listener that could
// not be bound, or the HTTP server or watcher failing after bind.
type TransportError struct {
	Addr string
	// Op is "listen" or "serve".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == "serve" {
		return fmt.Sprintf("dev server on %s failed: %v", e.Addr, e.Err)
	}
	return fmt.Sprintf("failed to listen on %s: %v", e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
