package profiler

import "time"

// NO_NODE marks a missing parent, child or sibling link.
const NO_NODE int32 = -1

// Node is one timed scope of a thread's call tree. Links are indices into the
// owning arena or frame. Siblings form a circular list: the first child's
// PrevSibling is the last child.
type Node struct {
	Tag         string
	Start       int64
	End         int64
	Parent      int32
	FirstChild  int32
	NextSibling int32
	PrevSibling int32
	Allocs      uint64
	Frees       uint64
	AllocBytes  uint64
	FreeBytes   uint64
	Closed      bool
}

// Elapsed is the time between the scope's push and pop.
func (n *Node) Elapsed() time.Duration {
	return time.Duration(n.End - n.Start)
}

// nodeArena owns the nodes of the tree being recorded on one thread.
type nodeArena struct {
	nodes []Node
}

// open appends a new node under parent and returns its index.
func (a *nodeArena) open(tag string, start int64, parent int32) int32 {
	idx := int32(len(a.nodes))
	a.nodes = append(a.nodes, Node{
		Tag:         tag,
		Start:       start,
		Parent:      parent,
		FirstChild:  NO_NODE,
		NextSibling: idx,
		PrevSibling: idx,
	})
	if parent != NO_NODE {
		a.appendChild(parent, idx)
	}
	return idx
}

func (a *nodeArena) appendChild(parent, child int32) {
	p := &a.nodes[parent]
	if p.FirstChild == NO_NODE {
		p.FirstChild = child
		return
	}
	first := p.FirstChild
	last := a.nodes[first].PrevSibling
	a.nodes[child].PrevSibling = last
	a.nodes[child].NextSibling = first
	a.nodes[last].NextSibling = child
	a.nodes[first].PrevSibling = child
}

// release drops every node. The backing array is kept for the next tree.
func (a *nodeArena) release() {
	clear(a.nodes)
	a.nodes = a.nodes[:0]
}

func (a *nodeArena) len() int {
	return len(a.nodes)
}

// children lists the children of node i in insertion order.
func children(nodes []Node, i int32) []int32 {
	first := nodes[i].FirstChild
	if first == NO_NODE {
		return nil
	}
	var out []int32
	for c := first; ; {
		out = append(out, c)
		c = nodes[c].NextSibling
		if c == first {
			break
		}
	}
	return out
}
