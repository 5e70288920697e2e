package vm

import "testing"

func TestCaptureUpvalueKeepsSlotOrder(t *testing.T) {
	m := New(Options{})
	for i := 0; i < 6; i++ {
		m.push(Number(float64(i)))
	}

	u4 := m.captureUpvalue(4)
	u1 := m.captureUpvalue(1)
	u3 := m.captureUpvalue(3)
	if again := m.captureUpvalue(3); again != u3 {
		t.Error("capturing a slot twice must share the upvalue")
	}

	want := []*Upvalue{u1, u3, u4}
	if len(m.openUpvalues) != len(want) {
		t.Fatalf("%d open upvalues, want %d", len(m.openUpvalues), len(want))
	}
	for i, u := range want {
		if m.openUpvalues[i] != u {
			t.Errorf("open[%d] = slot %d, want slot %d", i, m.openUpvalues[i].Slot, u.Slot)
		}
	}
}

func TestCloseUpvaluesFromSlot(t *testing.T) {
	m := New(Options{})
	for i := 0; i < 4; i++ {
		m.push(Number(float64(i * 10)))
	}
	low := m.captureUpvalue(0)
	high := m.captureUpvalue(2)

	m.upvalueSet(high, Number(99))
	if m.stack[2].AsNumber() != 99 {
		t.Error("an open upvalue writes through to its stack slot")
	}

	m.closeUpvalues(1)
	if high.Open || !low.Open {
		t.Fatalf("after close: high open %v, low open %v", high.Open, low.Open)
	}
	m.stack[2] = Number(-1)
	if got := m.upvalueGet(high); got.AsNumber() != 99 {
		t.Errorf("closed upvalue = %v, want 99", got)
	}
	m.upvalueSet(high, Number(7))
	if m.stack[2].AsNumber() != -1 {
		t.Error("a closed upvalue no longer aliases the stack")
	}
	if len(m.openUpvalues) != 1 || m.openUpvalues[0] != low {
		t.Errorf("open list = %v", m.openUpvalues)
	}
}
