package mcts

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
	"github.com/liujh168/leela-chess/game"
)

// ToDot renders the expanded part of the tree as a graphviz document, for
// eyeballing what the search actually explored. Call it only when no worker
// is running.
func (s *Search) ToDot() string {
	g := gographviz.NewGraph()
	if err := g.SetName("G"); err != nil {
		panic(err)
	}
	g.SetDir(true)

	id := 0
	var walk func(n *Node, parent string)
	walk = func(n *Node, parent string) {
		name := fmt.Sprintf("n%d", id)
		id++

		label := fmt.Sprintf("\"%s\\n%d visits\\nV: %.2f\\nN: %.2f\"",
			n.Move(), n.Visits(), n.Eval(game.White), n.Prior())
		attrs := map[string]string{
			"fontname": "Monaco",
			"shape":    "box",
			"label":    label,
		}
		g.AddNode("G", name, attrs)
		if parent != "" {
			g.AddEdge(parent, name, true, nil)
		}

		if !n.HasChildren() {
			return
		}
		for _, child := range n.Children() {
			walk(child, name)
		}
	}
	walk(s.root, "")
	return g.String()
}
