package bootstrap

import (
	"encoding/json"
	"fmt"
	"regexp"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FlagsGlobal is the window property holding the flags object.
const FlagsGlobal = "__LEAPBUNDLE_FLAGS__"

var globalName = regexp.MustCompile(`^[A-Za-z_$][\w$]*(\.[A-Za-z_$][\w$]*)*$`)

// ScriptRuntime bootstraps a browser runtime by injecting script elements
// into the host document: the flags object, the artifact scripts and a
// guarded call to <Global>.init({node, flags}) once the page has loaded.
type ScriptRuntime struct {
	// Global is the dotted path of the object exposing init (for example
	// "Elm.App"). Empty skips the init call.
	Global string
	// Scripts are the artifact URLs, in load order.
	Scripts []string
	// Client is the URL of the live-reload client (optional).
	Client string
}

// Init implements Runtime.
func (s *ScriptRuntime) Init(mount *html.Node, flags Flags) error {
	if s.Global != "" && !globalName.MatchString(s.Global) {
		return fmt.Errorf("invalid global %q", s.Global)
	}
	mountID := attr(mount, "id")
	if mountID == "" {
		return fmt.Errorf("mount element has no id")
	}

	body := findBody(mount)
	if body == nil {
		return fmt.Errorf("document has no body")
	}

	if flags == nil {
		flags = Flags{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("failed to encode flags: %w", err)
	}
	body.AppendChild(inlineScript(fmt.Sprintf("window.%s = %s;", FlagsGlobal, flagsJSON)))

	for _, src := range s.Scripts {
		body.AppendChild(srcScript(src))
	}
	if s.Client != "" {
		body.AppendChild(srcScript(s.Client))
	}

	if s.Global != "" {
		idJSON, err := json.Marshal(mountID)
		if err != nil {
			return err
		}
		// A throwing init is logged in the browser and never reaches the host page.
		body.AppendChild(inlineScript(fmt.Sprintf(
			`window.addEventListener("load", function () { try { %s.init({node: document.getElementById(%s), flags: window.%s}); } catch (e) { console.log(e); } });`,
			s.Global, idJSON, FlagsGlobal,
		)))
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// findBody walks up to the document and returns its body element.
func findBody(n *html.Node) *html.Node {
	root := n
	for root.Parent != nil {
		root = root.Parent
	}
	var walk func(*html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if b := walk(c); b != nil {
				return b
			}
		}
		return nil
	}
	return walk(root)
}

func srcScript(src string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Script,
		Data:     "script",
		Attr:     []html.Attribute{{Key: "src", Val: src}},
	}
}

func inlineScript(code string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: atom.Script, Data: "script"}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: code})
	return n
}
