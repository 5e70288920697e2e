package vm

// ---------------------------------------------------------------------------
// Heap registry
// ---------------------------------------------------------------------------

// heap tracks every object allocated while a program runs. Memory itself is
// reclaimed by the Go runtime; the registry decides which objects the VM
// still owns. At halt a reachability sweep from the roots keeps live objects
// and releases the rest.
type heap struct {
	objects   map[Object]struct{}
	allocated int
}

// SweepStats summarizes one teardown sweep.
type SweepStats struct {
	Allocated int // objects registered over the VM's lifetime
	Released  int // objects dropped by the sweep
	Retained  int // objects reachable from the roots
}

func newHeap() *heap {
	return &heap{objects: make(map[Object]struct{})}
}

func (h *heap) track(o Object) {
	if _, ok := h.objects[o]; ok {
		return
	}
	h.objects[o] = struct{}{}
	h.allocated++
}

// Len returns the number of registered objects.
func (h *heap) Len() int {
	return len(h.objects)
}

// sweep keeps the registered objects reachable from roots and releases the
// rest. Objects not registered (compile-time constants) are traversed but
// never added.
func (h *heap) sweep(roots []Value, upvalues []*Upvalue, stack []Value) SweepStats {
	marked := make(map[Object]struct{}, len(h.objects))
	var work []Object

	mark := func(v Value) {
		if v.IsObject() {
			work = append(work, v.AsObject())
		}
	}
	for _, v := range roots {
		mark(v)
	}
	for _, u := range upvalues {
		work = append(work, u)
	}

	for len(work) > 0 {
		o := work[len(work)-1]
		work = work[:len(work)-1]
		if _, seen := marked[o]; seen {
			continue
		}
		marked[o] = struct{}{}

		switch obj := o.(type) {
		case *Function:
			for _, c := range obj.Chunk.Constants {
				mark(c)
			}
		case *Closure:
			work = append(work, obj.Function)
			for _, u := range obj.Upvalues {
				work = append(work, u)
			}
			mark(obj.Receiver)
		case *Upvalue:
			if obj.Open {
				if obj.Slot < len(stack) {
					mark(stack[obj.Slot])
				}
			} else {
				mark(obj.Closed)
			}
		case *Table:
			for _, v := range obj.Fields {
				mark(v)
			}
		case *Array:
			for _, v := range obj.Elements {
				mark(v)
			}
			for _, n := range obj.Methods {
				work = append(work, n)
			}
		case *Native:
			mark(obj.Receiver)
		}
	}

	stats := SweepStats{Allocated: h.allocated}
	for o := range h.objects {
		if _, live := marked[o]; live {
			stats.Retained++
			continue
		}
		delete(h.objects, o)
		stats.Released++
	}
	return stats
}
