package devserver

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
	"github.com/leapstack-labs/leapbundle/pkg/core"
)

// OverlayID is the element id of the build error overlay.
const OverlayID = "leapbundle-overlay"

const overlayStyle = "position:fixed;inset:0;z-index:2147483647;overflow:auto;margin:0;padding:24px;" +
	"background:rgba(24,24,27,.95);color:#fafafa;font:13px/1.5 ui-monospace,monospace"

// Overlay renders the build error overlay for diags. With no diagnostics
// it renders a hidden placeholder, which clears a visible overlay when
// patched in its place.
func Overlay(diags []core.Diagnostic) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		if len(diags) == 0 {
			b.WriteString(`<div id="` + OverlayID + `" hidden></div>`)
			_, err := io.WriteString(w, b.String())
			return err
		}

		b.WriteString(`<div id="` + OverlayID + `" style="` + overlayStyle + `">`)
		b.WriteString(`<h2 style="margin:0 0 12px;color:#f87171">Build failed</h2>`)
		for _, d := range diags {
			color := "#f87171"
			if !d.IsError() {
				color = "#fbbf24"
			}
			b.WriteString(`<pre style="white-space:pre-wrap;margin:0 0 8px;color:` + color + `">`)
			b.WriteString(templ.EscapeString(d.String()))
			b.WriteString(`</pre>`)
		}
		b.WriteString(`<p style="margin-top:16px;color:#a1a1aa">The last successful build is still being served.</p>`)
		b.WriteString(`</div>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}
