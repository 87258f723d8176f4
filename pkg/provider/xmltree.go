package provider

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/devicelab-dev/adaptive-selector/pkg/core"
)

// treeNode is the in-memory element backing TreeProvider handles.
type treeNode struct {
	attrs    Attributes
	parent   *treeNode
	children []*treeNode
	gen      uint64
}

// TreeProvider serves a UI hierarchy parsed from page-source XML. It
// backs the CLI and tests, and its Reload method swaps in a new
// snapshot so a drifted session can be simulated: handles from the
// previous snapshot become stale.
type TreeProvider struct {
	root *treeNode
	gen  uint64
}

// NewTreeProvider parses a page-source document into a provider.
//
// The document root is the window element; its title/class attributes
// become the window context stamped on every node. Child element tags
// are the control types (<Button automationId="ok" .../>), with a
// "node" tag plus control-type attribute accepted as well.
func NewTreeProvider(xmlData string) (*TreeProvider, error) {
	p := &TreeProvider{}
	if err := p.Reload(xmlData); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload replaces the element tree with a freshly parsed snapshot.
// All previously handed out nodes become stale.
func (p *TreeProvider) Reload(xmlData string) error {
	root, err := parseTree(xmlData)
	if err != nil {
		return err
	}
	p.gen++
	stamp(root, p.gen)
	p.root = root
	return nil
}

// Root returns the window element.
func (p *TreeProvider) Root() (Node, error) {
	if p.root == nil {
		return nil, core.ErrInvalidPageSource.WithMessage("provider has no tree loaded")
	}
	return p.root, nil
}

// Children returns the direct children of a node.
func (p *TreeProvider) Children(n Node) ([]Node, error) {
	tn, err := p.resolve(n)
	if err != nil {
		return nil, err
	}
	out := make([]Node, len(tn.children))
	for i, c := range tn.children {
		out[i] = c
	}
	return out, nil
}

// Attributes reads the properties of a node.
func (p *TreeProvider) Attributes(n Node) (*Attributes, error) {
	tn, err := p.resolve(n)
	if err != nil {
		return nil, err
	}
	attrs := tn.attrs
	return &attrs, nil
}

// HitTest returns the deepest visible element containing the point.
func (p *TreeProvider) HitTest(x, y int) (Node, error) {
	if p.root == nil {
		return nil, core.ErrInvalidPageSource.WithMessage("provider has no tree loaded")
	}
	var best *treeNode
	bestDepth := -1
	var scan func(n *treeNode, depth int)
	scan = func(n *treeNode, depth int) {
		if n.attrs.Visible && !n.attrs.Bounds.IsZero() && n.attrs.Bounds.Contains(x, y) && depth > bestDepth {
			best = n
			bestDepth = depth
		}
		for _, c := range n.children {
			scan(c, depth+1)
		}
	}
	scan(p.root, 0)
	if best == nil {
		return nil, core.ErrElementNotFound.WithDetails(map[string]interface{}{"x": x, "y": y})
	}
	return best, nil
}

func (p *TreeProvider) resolve(n Node) (*treeNode, error) {
	tn, ok := n.(*treeNode)
	if !ok || tn == nil {
		return nil, core.ErrStaleNode.WithMessage("node does not belong to this provider")
	}
	if tn.gen != p.gen {
		return nil, core.ErrStaleNode
	}
	return tn, nil
}

func stamp(n *treeNode, gen uint64) {
	n.gen = gen
	for _, c := range n.children {
		stamp(c, gen)
	}
}

// parseTree decodes page-source XML with a token loop so any element
// names are accepted.
func parseTree(xmlData string) (*treeNode, error) {
	decoder := xml.NewDecoder(strings.NewReader(xmlData))

	var parse func(parent *treeNode) (*treeNode, error)
	parse = func(parent *treeNode) (*treeNode, error) {
		for {
			token, err := decoder.Token()
			if err != nil {
				return nil, err
			}

			switch t := token.(type) {
			case xml.StartElement:
				node := &treeNode{parent: parent}
				node.attrs.ControlType = t.Name.Local
				node.attrs.Enabled = true
				node.attrs.Visible = true

				for _, attr := range t.Attr {
					switch attr.Name.Local {
					case "automationId", "automation-id":
						node.attrs.AutomationID = attr.Value
					case "name":
						node.attrs.Name = attr.Value
					case "class", "className":
						node.attrs.ClassName = attr.Value
					case "control-type", "controlType":
						node.attrs.ControlType = attr.Value
					case "localized-control-type":
						node.attrs.LocalizedControlType = attr.Value
					case "value":
						node.attrs.Value = attr.Value
					case "text":
						node.attrs.Text = attr.Value
					case "title":
						node.attrs.WindowTitle = attr.Value
					case "bounds":
						node.attrs.Bounds = parseBounds(attr.Value)
					case "enabled":
						node.attrs.Enabled = attr.Value != "false"
					case "visible", "displayed":
						node.attrs.Visible = attr.Value != "false"
					}
				}

				for {
					child, err := parse(node)
					if err != nil || child == nil {
						break
					}
					node.children = append(node.children, child)
				}

				return node, nil

			case xml.EndElement:
				return nil, nil
			}
		}
	}

	root, err := parse(nil)
	if err != nil || root == nil {
		return nil, core.ErrInvalidPageSource.WithCause(err)
	}

	// The root element carries the window context.
	if root.attrs.WindowTitle == "" {
		root.attrs.WindowTitle = root.attrs.Name
	}
	windowClass := root.attrs.ClassName
	root.attrs.WindowClass = windowClass
	propagateWindow(root, root.attrs.WindowTitle, windowClass)
	return root, nil
}

func propagateWindow(n *treeNode, title, class string) {
	n.attrs.WindowTitle = title
	n.attrs.WindowClass = class
	for _, c := range n.children {
		propagateWindow(c, title, class)
	}
}

// parseBounds parses a "[x1,y1][x2,y2]" bounds string.
func parseBounds(s string) core.Bounds {
	s = strings.ReplaceAll(s, "][", ",")
	s = strings.Trim(s, "[]")
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return core.Bounds{}
	}

	x1, _ := strconv.Atoi(parts[0])
	y1, _ := strconv.Atoi(parts[1])
	x2, _ := strconv.Atoi(parts[2])
	y2, _ := strconv.Atoi(parts[3])

	return core.Bounds{
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}
