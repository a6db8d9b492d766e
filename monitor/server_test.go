package monitor

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/lookbusy1344/arm-monitor/vm"
)

// runOne feeds a single command (plus any trailing payload the caller has
// already appended) through one Server.handle call and returns whatever the
// handler wrote to the reply stream.
func runOne(t *testing.T, v *vm.VM, cmd []byte) []byte {
	t.Helper()
	in := bytes.NewReader(cmd)
	var out bytes.Buffer
	s := NewServer(v, in, &out)
	b, err := s.br.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	if err := s.handle(b); err != nil {
		t.Fatalf("handle: %v", err)
	}
	return out.Bytes()
}

func TestPingRepliesOK00(t *testing.T) {
	v := vm.NewVM()
	got := runOne(t, v, []byte{opPING})
	if string(got) != "OK00" {
		t.Errorf("expected OK00, got %q", got)
	}
}

func TestResetRestoresPowerOnStatus(t *testing.T) {
	v := vm.NewVM()
	v.Start(0, 0)
	runOne(t, v, []byte{opReset})
	if v.Status != vm.StatusReset {
		t.Errorf("expected status reset after RESET, got 0x%X", v.Status)
	}
}

// TestSetMemThenGetMemRoundTrip exercises spec.md §6.2's memory-form
// SET_MEM/GET_MEM wire encoding: opcode, address(4), count(2), then
// count*size bytes.
func TestSetMemThenGetMemRoundTrip(t *testing.T) {
	v := vm.NewVM()

	setCmd := []byte{0x40} // SET_MEM, size code 0 (1 byte/element)
	setCmd = appendU32(setCmd, 0x1000)
	setCmd = appendU16(setCmd, 4)
	setCmd = append(setCmd, 0xDE, 0xAD, 0xBE, 0xEF)
	runOne(t, v, setCmd)

	getCmd := []byte{0x48} // GET_MEM, size code 0
	getCmd = appendU32(getCmd, 0x1000)
	getCmd = appendU16(getCmd, 4)
	got := runOne(t, v, getCmd)

	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if !bytes.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// TestSetRegThenGetRegRoundTrip exercises the register-bank extension
// (0x50-0x5F) grounded on jimulator.c's BR_SET_REG/BR_GET_REG.
func TestSetRegThenGetRegRoundTrip(t *testing.T) {
	v := vm.NewVM()

	// SET_REG, size code 0 (ignored: the register form always moves 4 bytes
	// per register): bank=current(0), reg=1 (R1).
	setCmd := []byte{0x50}
	setCmd = appendU32(setCmd, 1) // addr: bank bits 0, reg bits 1
	setCmd = appendU16(setCmd, 1)
	setCmd = appendU32(setCmd, 0xCAFEF00D)
	runOne(t, v, setCmd)

	if got := v.CPU.GetRegister(vm.R1); got != 0xCAFEF00D {
		t.Fatalf("expected R1=0xCAFEF00D after SET_REG, got 0x%X", got)
	}

	getCmd := []byte{0x58}
	getCmd = appendU32(getCmd, 1)
	getCmd = appendU16(getCmd, 1)
	got := runOne(t, v, getCmd)

	if binary.LittleEndian.Uint32(got) != 0xCAFEF00D {
		t.Errorf("expected GET_REG to read back 0xCAFEF00D, got 0x%X", binary.LittleEndian.Uint32(got))
	}
}

// TestBPWriteThenBPReadRoundTrip exercises the BP_WRITE/BP_READ wire layout:
// slot(1)+cond(1)+size(1)+addrA(4)+addrB(4)+dataA(8)+dataB(8).
func TestBPWriteThenBPReadRoundTrip(t *testing.T) {
	v := vm.NewVM()

	writeCmd := []byte{opBPWrite, 0, 0x08, 0x00}
	writeCmd = appendU32(writeCmd, 4)
	writeCmd = appendU32(writeCmd, 8)
	writeCmd = appendU64(writeCmd, 0)
	writeCmd = appendU64(writeCmd, 0)
	runOne(t, v, writeCmd)

	readCmd := []byte{opBPRead, 0}
	got := runOne(t, v, readCmd)

	if got[0] != 0x08 {
		t.Errorf("expected cond=0x08, got 0x%X", got[0])
	}
	if binary.LittleEndian.Uint32(got[2:6]) != 4 {
		t.Errorf("expected addrA=4, got %d", binary.LittleEndian.Uint32(got[2:6]))
	}
	if binary.LittleEndian.Uint32(got[6:10]) != 8 {
		t.Errorf("expected addrB=8, got %d", binary.LittleEndian.Uint32(got[6:10]))
	}
}

func TestBPSetThenBPGetMasksRoundTrip(t *testing.T) {
	v := vm.NewVM()

	setCmd := []byte{opBPSet}
	setCmd = appendU32(setCmd, 1)
	setCmd = appendU32(setCmd, 1)
	runOne(t, v, setCmd)

	got := runOne(t, v, []byte{opBPGet})
	used := binary.LittleEndian.Uint32(got[0:4])
	active := binary.LittleEndian.Uint32(got[4:8])
	if used != 1 || active != 1 {
		t.Errorf("expected used=1 active=1, got used=%d active=%d", used, active)
	}
}

// TestStartMoveImmediateHaltOverWire drives spec.md §8 scenario 1 through the
// actual wire bytes: a MOV+SWI program, then START with flags=0, steps=0.
func TestStartMoveImmediateHaltOverWire(t *testing.T) {
	v := vm.NewVM()
	v.Memory.WriteWord(0, 0xE3A0002A) // MOV R0, #0x2A
	v.Memory.WriteWord(4, 0xEF000002) // SWI 2

	startCmd := []byte{0x80} // START, flags=0
	startCmd = appendU32(startCmd, 0)
	runOne(t, v, startCmd)

	for i := 0; i < 10 && v.Status&0x80 != 0; i++ {
		v.Tick()
	}

	if v.Status != vm.StatusStoppedByProgram {
		t.Fatalf("expected stopped:by_program, got status=0x%X", v.Status)
	}
	if v.CPU.GetRegister(vm.R0) != 0x2A {
		t.Errorf("expected R0=0x2A, got 0x%X", v.CPU.GetRegister(vm.R0))
	}
}

func TestWhoamiDescribesOneTerminalAndOneSegment(t *testing.T) {
	v := vm.NewVM()
	got := runOne(t, v, []byte{opWhoami})

	if len(got) < 1 {
		t.Fatalf("expected at least a length byte")
	}
	length := int(got[0])
	if len(got) != 1+length {
		t.Fatalf("descriptor length byte %d doesn't match body length %d", length, len(got)-1)
	}
	body := got[1:]
	featureCount := body[2]
	if featureCount != 1 {
		t.Errorf("expected 1 feature record, got %d", featureCount)
	}
	if body[3] != featureTerminal {
		t.Errorf("expected feature type terminal (0x%X), got 0x%X", featureTerminal, body[3])
	}
	if segmentCount := body[5]; segmentCount != 1 {
		t.Errorf("expected 1 memory segment record, got %d", segmentCount)
	}
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}
