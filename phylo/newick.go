package phylo

import (
	"fmt"
	"strings"
)

// Newick renders the tree in Newick format with species ids as node labels
// and lifetimes as branch lengths. Nodes whose max size never reached
// minSize are left out, their children reattached to the grandparent;
// a too-small node that still has descendants is only dropped when
// allowExcludeWithDescendants is set.
func (t *Tree) Newick(minSize uint32, allowExcludeWithDescendants bool) string {
	root := t.Root()
	if root == -1 {
		return ";"
	}
	rendered := t.renderVisible(root, minSize, allowExcludeWithDescendants)
	if len(rendered) == 0 {
		return ";"
	}
	if len(rendered) == 1 {
		return rendered[0] + ";"
	}
	// The root itself was excluded; bind the surviving subtrees together.
	return "(" + strings.Join(rendered, ",") + ");"
}

// renderVisible returns the rendered subtrees contributed by idx: either a
// single rendering of idx itself, or — when idx is excluded — the renderings
// of its visible descendants spliced into the caller's list.
func (t *Tree) renderVisible(idx int, minSize uint32, allowExclude bool) []string {
	n := t.Node(idx)

	var parts []string
	for _, c := range n.Children {
		parts = append(parts, t.renderVisible(c, minSize, allowExclude)...)
	}

	if n.MaxSize < minSize {
		if len(parts) == 0 {
			return nil
		}
		if allowExclude {
			return parts
		}
	}

	label := fmt.Sprintf("%d:%d", n.ID, n.TLast-n.TFirst)
	if len(parts) == 0 {
		return []string{label}
	}
	return []string{"(" + strings.Join(parts, ",") + ")" + label}
}
