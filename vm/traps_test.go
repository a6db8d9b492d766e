package vm

import "testing"

// TestTrapTableRangePredicateFiresOnlyInRange covers spec.md §8's quantified
// invariant: with cond=0x08 (range-address, no data constraint), firing
// occurs iff addrA <= pc <= addrB at fetch.
func TestTrapTableRangePredicateFiresOnlyInRange(t *testing.T) {
	tt := NewTrapTable(NB)
	tt.Set(0, TrapSlot{Cond: 0x08, AddrA: 10, AddrB: 20})
	tt.SetMasks(1, 1)

	cases := []struct {
		pc   uint32
		want bool
	}{
		{9, false},
		{10, true},
		{15, true},
		{20, true},
		{21, false},
	}
	for _, c := range cases {
		_, got := tt.CheckFetch(c.pc, 0)
		if got != c.want {
			t.Errorf("pc=%d: expected fire=%v, got %v", c.pc, c.want, got)
		}
	}
}

func TestTrapTableRequiresUsedAndActive(t *testing.T) {
	tt := NewTrapTable(NB)
	tt.Set(0, TrapSlot{Cond: 0x08, AddrA: 10, AddrB: 20})

	tt.SetMasks(0, 1) // used=0
	if _, ok := tt.CheckFetch(15, 0); ok {
		t.Errorf("expected no fire when used bit is clear")
	}

	tt.SetMasks(1, 0) // active=0
	if _, ok := tt.CheckFetch(15, 0); ok {
		t.Errorf("expected no fire when active bit is clear")
	}
}

func TestTrapTableMaskedEqualityPredicate(t *testing.T) {
	tt := NewTrapTable(NB)
	// data predicate: (op & 0x0F) == 0x05
	tt.Set(0, TrapSlot{Cond: 0x0B, AddrA: 0, AddrB: 0xFFFFFFFF, DataA: 0x05, DataB: 0x0F})
	tt.SetMasks(1, 1)

	if _, ok := tt.CheckFetch(0, 0x15); !ok {
		t.Errorf("expected fire: op&0xF == 0x5")
	}
	if _, ok := tt.CheckFetch(0, 0x16); ok {
		t.Errorf("expected no fire: op&0xF != 0x5")
	}
}

// TestTrapTableWatchpointRequiresDirectionAndSize covers spec.md §4.5 step 2:
// a watchpoint additionally gates on the access direction and size bits.
func TestTrapTableWatchpointRequiresDirectionAndSize(t *testing.T) {
	tt := NewTrapTable(NW)
	tt.Set(0, TrapSlot{
		Cond:  0x08 | trapDirWrite,
		Size:  trapSizeWord,
		AddrA: 0x100,
		AddrB: 0x100,
	})
	tt.SetMasks(1, 1)

	if _, ok := tt.CheckAccess(0x100, 0, 4, true); !ok {
		t.Errorf("expected fire on matching write")
	}
	if _, ok := tt.CheckAccess(0x100, 0, 4, false); ok {
		t.Errorf("expected no fire on read: direction bit not set for read")
	}
	if _, ok := tt.CheckAccess(0x100, 0, 1, true); ok {
		t.Errorf("expected no fire on byte write: size bit not set for byte")
	}
}

func TestTrapTableResetClearsSlotsAndMasks(t *testing.T) {
	tt := NewTrapTable(NB)
	tt.Set(0, TrapSlot{Cond: 0x08, AddrA: 1, AddrB: 2})
	tt.SetMasks(1, 1)

	tt.Reset()

	used, active := tt.Masks()
	if used != 0 || active != 0 {
		t.Errorf("expected masks cleared, got used=%d active=%d", used, active)
	}
	slot, _ := tt.Get(0)
	if slot != (TrapSlot{}) {
		t.Errorf("expected slot 0 cleared, got %+v", slot)
	}
}
