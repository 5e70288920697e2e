package compiler

// slabSize is the number of nodes allocated per slab.
const slabSize = 256

// nodeArena allocates the nodes of one compilation unit in fixed-size
// slabs. Slabs are never grown in place, so node pointers stay valid for
// the arena's lifetime, and the whole tree is released together when the
// arena is dropped.
type nodeArena struct {
	slabs [][]Node
	used  int // nodes used in the last slab
	count int
}

func (a *nodeArena) alloc() *Node {
	if len(a.slabs) == 0 || a.used == slabSize {
		a.slabs = append(a.slabs, make([]Node, slabSize))
		a.used = 0
	}
	n := &a.slabs[len(a.slabs)-1][a.used]
	a.used++
	a.count++
	return n
}

// node allocates a node of kind k built from tok.
func (a *nodeArena) node(k Kind, tok Token) *Node {
	n := a.alloc()
	n.Shape = shapeOf(k)
	n.Kind = k
	n.Token = tok
	return n
}

// Len returns the number of nodes allocated.
func (a *nodeArena) Len() int {
	return a.count
}
