// Package monitor implements the byte-oriented debug protocol described by
// spec.md §4.7/§6.2: a request/response wire format over stdin/stdout that
// drives a vm.VM through its Start/Stop/Continue/Tick/Reset surface. It is a
// thin translator — the run loop and scheduler state live in vm.VM itself
// (spec.md's C8); this package only decodes opcodes, touches the VM's
// exported surface, and encodes replies.
package monitor

// Opcode values, named per jimulator.c's interface.h BR_* enum and spec.md
// §6.2's wire table. The SET_REG/GET_REG pair (0x50-0x5F) has no entry in
// §6.2's table — see DESIGN.md's "SET_MEM/GET_MEM register form" note for
// why they're grounded on jimulator.c's BR_SET_REG/BR_GET_REG (0x52/0x5A)
// and reconciled into this range instead.
const (
	opNOP    = 0x00
	opPING   = 0x01
	opWhoami = 0x02
	opReset  = 0x04

	opFIFOWrite = 0x12
	opFIFORead  = 0x13

	opStatus   = 0x20
	opStop     = 0x21
	opPause    = 0x22
	opContinue = 0x23
	opSetRTF   = 0x24
	opGetRTF   = 0x25

	opBPWrite = 0x30
	opBPRead  = 0x31
	opBPSet   = 0x32
	opBPGet   = 0x33
	opWPWrite = 0x34
	opWPRead  = 0x35
	opWPSet   = 0x36
	opWPGet   = 0x37

	// memClassMask/memClassMem/memClassReg select, within the 0x40-0x5F
	// bulk-transfer family, whether the address names a memory location or
	// a register-bank slot. Mirrors jimulator.c's monitor_memory() test
	// (c & 0x30) == 0x10.
	memClassMask = 0x30
	memClassMem  = 0x00
	memClassReg  = 0x10

	// memFamilyMask/memFamilyBase cover both 0x40-0x4F (memory form) and
	// 0x50-0x5F (register form) — only the top 3 bits select the family,
	// bit 4 (tested by memClassMask above) distinguishes the two forms.
	memFamilyMask = 0xE0
	memFamilyBase = 0x40

	memDirGet  = 0x08 // bit3: set = GET (read), clear = SET (write)
	memSizeBits = 0x07 // low 3 bits: element size = 1 << code

	startFamilyMask = 0xC0
	startFamilyBase = 0x80
	startFlagsMask  = 0x3F
)
