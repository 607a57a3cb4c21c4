// Package bootstrap locates the mount element of a host document and
// initializes the UI runtime with a static flags object. Failures are
// caught, logged and reported in the Result; they never propagate.
package bootstrap

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/net/html"
)

// ErrMountNotFound is reported when the document has no element with the
// mount id. The runtime is not initialized in that case.
var ErrMountNotFound = errors.New("mount element not found")

// Flags is the configuration handed to the runtime verbatim.
type Flags map[string]any

// Runtime initializes the UI on a mount element.
type Runtime interface {
	Init(mount *html.Node, flags Flags) error
}

// Result is the outcome of a bootstrap attempt.
type Result struct {
	Mount *html.Node
	Err   error
	// Panicked is set when Init panicked; Err holds the recovered value.
	Panicked bool
}

// OK reports whether the runtime was initialized.
func (r Result) OK() bool { return r.Err == nil }

// Run finds the mount element and calls rt.Init with flags.
func Run(doc *html.Node, mountID string, rt Runtime, flags Flags, logger *slog.Logger) (res Result) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mount := FindByID(doc, mountID)
	if mount == nil {
		logger.Error("bootstrap failed", "mount_id", mountID, "error", ErrMountNotFound)
		return Result{Err: fmt.Errorf("%w: #%s", ErrMountNotFound, mountID)}
	}
	res.Mount = mount

	defer func() {
		if r := recover(); r != nil {
			res.Panicked = true
			res.Err = fmt.Errorf("runtime init panicked: %v", r)
			logger.Error("bootstrap failed", "mount_id", mountID, "error", res.Err)
		}
	}()

	if err := rt.Init(mount, flags); err != nil {
		res.Err = fmt.Errorf("runtime init failed: %w", err)
		logger.Error("bootstrap failed", "mount_id", mountID, "error", err)
		return res
	}

	logger.Debug("bootstrapped", "mount_id", mountID)
	return res
}

// FindByID returns the first element whose id attribute equals id.
func FindByID(n *html.Node, id string) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

// Document parses src, bootstraps it with rt and renders the result. When
// bootstrapping fails the original document is returned unchanged.
func Document(src []byte, mountID string, rt Runtime, flags Flags, logger *slog.Logger) ([]byte, Result) {
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return src, Result{Err: fmt.Errorf("failed to parse document: %w", err)}
	}

	res := Run(doc, mountID, rt, flags, logger)
	if !res.OK() {
		return src, res
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return src, Result{Mount: res.Mount, Err: fmt.Errorf("failed to render document: %w", err)}
	}
	return buf.Bytes(), res
}
