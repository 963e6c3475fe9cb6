package dataset

import "github.com/zakhtar8/aamalcalendar/internal/model"

// BulletNode is one node of a reconstructed bullet tree.
type BulletNode struct {
	Text     string        `json:"text"`
	Children []*BulletNode `json:"children,omitempty"`
}

// BuildBulletTree reconstructs a tree from a flat list of (depth, text)
// pairs. A line of depth n attaches to the most recent open node of depth
// n-1; lines that skip levels are clamped to the deepest currently open
// level so malformed input still yields a usable tree.
//
// The stack is indexed by depth, so no recursion is needed on the input side.
func BuildBulletTree(lines []model.BulletLine) []*BulletNode {
	var roots []*BulletNode

	// open[d] is the last node seen at depth d.
	var open []*BulletNode

	for _, line := range lines {
		depth := line.Depth
		if depth < 0 {
			depth = 0
		}
		if depth > len(open) {
			depth = len(open)
		}

		node := &BulletNode{Text: line.Text}
		if depth == 0 {
			roots = append(roots, node)
		} else {
			parent := open[depth-1]
			parent.Children = append(parent.Children, node)
		}

		open = append(open[:depth], node)
	}

	return roots
}
