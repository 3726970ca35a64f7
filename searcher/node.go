package searcher

import (
	"fmt"

	"connect4/game"
)

// handle addresses a node in a tree's arena.
type handle int32

const nilNode handle = -1

func (h handle) isValid() bool {
	return h >= 0
}

type node struct {
	state       game.State
	fingerprint string
	parent      handle
	children    []handle
	move        int         // column played to reach this node
	mover       game.Player // player who made that move
	visits      int
	wins        float64 // summed rewards from mover's perspective
	score       float64 // last selection score
	expanded    bool
	terminal    bool
	won         bool // mover has four in a row
}

// tree stores nodes contiguously and links them by handle.
type tree struct {
	nodes []node
	root  handle
}

func newTree(state game.State, mover game.Player) *tree {
	t := &tree{nodes: make([]node, 0, 1024)}
	t.root = t.add(state, nilNode, NoMove, mover)
	return t
}

func (t *tree) add(state game.State, parent handle, move int, mover game.Player) handle {
	h := handle(len(t.nodes))
	t.nodes = append(t.nodes, node{
		state:       state,
		fingerprint: state.Fingerprint(),
		parent:      parent,
		move:        move,
		mover:       mover,
		won:         mover != game.None && state.HasWon(mover),
	})
	return h
}

func (t *tree) get(h handle) *node {
	return &t.nodes[h]
}

func (t *tree) size() int {
	return len(t.nodes)
}

// expand adds one child per legal column. A won or full position becomes
// terminal instead.
func (t *tree) expand(h handle) []handle {
	n := t.get(h)
	if n.expanded {
		return n.children
	}
	n.expanded = true
	columns := n.state.LegalColumns()
	if n.won || len(columns) == 0 {
		n.terminal = true
		return nil
	}

	state, next := n.state, n.mover.Opponent()
	children := make([]handle, 0, len(columns))
	for _, column := range columns {
		child := state.Copy()
		if !child.Place(column, next) {
			panic(fmt.Sprintf("legal column %d rejected", column))
		}
		children = append(children, t.add(child, h, column, next))
	}
	// t.add may have grown the arena
	t.get(h).children = children
	return children
}

// backpropagate adds value to h and alternates its sign on the way to the root.
func (t *tree) backpropagate(h handle, value float64) {
	if value == 0 {
		value = DrawEpsilon
	}
	for h.isValid() {
		n := t.get(h)
		n.visits++
		n.wins += value
		value = -value
		h = n.parent
	}
}

// reroot makes h the root, keeping only its subtree.
func (t *tree) reroot(h handle) {
	remap := make([]handle, len(t.nodes))
	for i := range remap {
		remap[i] = nilNode
	}
	order := []handle{h}
	remap[h] = 0
	for i := 0; i < len(order); i++ {
		for _, c := range t.nodes[order[i]].children {
			remap[c] = handle(len(order))
			order = append(order, c)
		}
	}

	nodes := make([]node, len(order), max(len(order), cap(t.nodes)))
	for i, old := range order {
		n := t.nodes[old]
		if n.parent.isValid() {
			n.parent = remap[n.parent]
		}
		children := make([]handle, len(n.children))
		for j, c := range n.children {
			children[j] = remap[c]
		}
		n.children = children
		nodes[i] = n
	}
	t.nodes = nodes
	t.root = 0
}

// find returns the root or a root child whose position matches fingerprint.
func (t *tree) find(fingerprint string) handle {
	root := t.get(t.root)
	if root.fingerprint == fingerprint {
		return t.root
	}
	for _, c := range root.children {
		if t.get(c).fingerprint == fingerprint {
			return c
		}
	}
	return nilNode
}
