package vm

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

// captureUpvalue finds or creates the open upvalue aliasing slot. The
// open list stays sorted by slot, so the search runs from the top.
func (vm *VM) captureUpvalue(slot int) *Upvalue {
	i := len(vm.openUpvalues) - 1
	for ; i >= 0; i-- {
		u := vm.openUpvalues[i]
		if u.Slot == slot {
			return u
		}
		if u.Slot < slot {
			break
		}
	}
	u := &Upvalue{Slot: slot, Open: true}
	vm.heap.track(u)
	vm.openUpvalues = append(vm.openUpvalues, nil)
	copy(vm.openUpvalues[i+2:], vm.openUpvalues[i+1:])
	vm.openUpvalues[i+1] = u
	return u
}

// closeUpvalues closes every open upvalue at or above slot `last`.
func (vm *VM) closeUpvalues(last int) {
	for n := len(vm.openUpvalues); n > 0; n = len(vm.openUpvalues) {
		u := vm.openUpvalues[n-1]
		if u.Slot < last {
			return
		}
		u.Closed = vm.stack[u.Slot]
		u.Open = false
		vm.openUpvalues = vm.openUpvalues[:n-1]
	}
}

func (vm *VM) upvalueGet(u *Upvalue) Value {
	if u.Open {
		return vm.stack[u.Slot]
	}
	return u.Closed
}

func (vm *VM) upvalueSet(u *Upvalue, v Value) {
	if u.Open {
		vm.stack[u.Slot] = v
		return
	}
	u.Closed = v
}
