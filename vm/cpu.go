package vm

// CPU holds the processor state described by spec.md §3: sixteen general
// registers banked by mode and CPSR/SPSR. The step counters reported by the
// monitor's STATUS query live on VM, not here.
type CPU struct {
	// user holds R0-R14 for the user/system view. Every mode shares R0-R7
	// with this bank; non-FIQ privileged modes share R8-R12 with it too.
	user [15]uint32

	// PC is the raw stored program counter (register 15), with no prefetch
	// offset applied. GetRegister(15) adds the offset; this field is what
	// read_raw(15) and the monitor's architectural PC report use.
	PC uint32

	// Banked R8-R14 (fiq) and R13-R14 (irq/svc/abt/und). Indexed by
	// register number for clarity; only indices 8-14 (fiq) or 13-14
	// (others) are ever read or written.
	fiqBank [15]uint32
	irqBank [15]uint32
	svcBank [15]uint32
	abtBank [15]uint32
	undBank [15]uint32

	CPSR CPSR

	// spsr[b] holds the saved PSR for privileged bank b. spsr[bankUser] is
	// unused; user and system modes have no SPSR.
	spsr [bankCount]uint32
}

// CPSR is the current (or saved) program status register, laid out per
// spec.md §3: condition flags, interrupt masks, the instruction-set select
// bit, and the mode field.
type CPSR struct {
	N, Z, C, V bool
	I, F       bool
	T          bool
	Mode       Mode
}

// ToUint32 packs the CPSR into its wire/register representation.
func (c *CPSR) ToUint32() uint32 {
	var v uint32
	if c.N {
		v |= 1 << CPSRBitN
	}
	if c.Z {
		v |= 1 << CPSRBitZ
	}
	if c.C {
		v |= 1 << CPSRBitC
	}
	if c.V {
		v |= 1 << CPSRBitV
	}
	if c.I {
		v |= 1 << CPSRBitI
	}
	if c.F {
		v |= 1 << CPSRBitF
	}
	if c.T {
		v |= 1 << CPSRBitT
	}
	v |= uint32(c.Mode) & Mask5Bit
	return v
}

// FromUint32 unpacks a wire/register representation into the CPSR fields.
func (c *CPSR) FromUint32(value uint32) {
	c.N = value&(1<<CPSRBitN) != 0
	c.Z = value&(1<<CPSRBitZ) != 0
	c.C = value&(1<<CPSRBitC) != 0
	c.V = value&(1<<CPSRBitV) != 0
	c.I = value&(1<<CPSRBitI) != 0
	c.F = value&(1<<CPSRBitF) != 0
	c.T = value&(1<<CPSRBitT) != 0
	m := Mode(value & Mask5Bit)
	if m.valid() {
		c.Mode = m
	}
}

// Register aliases, kept for readability at call sites.
const (
	R0  = 0
	R1  = 1
	R2  = 2
	R3  = 3
	R4  = 4
	R5  = 5
	R6  = 6
	R7  = 7
	R8  = 8
	R9  = 9
	R10 = 10
	R11 = 11
	R12 = 12
	SP  = 13
	LR  = 14
)

// NewCPU creates a CPU in the reset state described by spec.md §3: CPSR =
// 0x000000C0 | supervisor mode (IRQ/FIQ masked, wide ISA), R15 = 0.
func NewCPU() *CPU {
	c := &CPU{}
	c.Reset()
	return c
}

// Reset re-initializes the CPU to its power-on state.
func (c *CPU) Reset() {
	*c = CPU{}
	c.CPSR = CPSR{I: true, F: true, Mode: ModeSupervisor}
	c.PC = 0
}

func (c *CPU) bankSlice(b bank) *[15]uint32 {
	switch b {
	case bankFIQ:
		return &c.fiqBank
	case bankIRQ:
		return &c.irqBank
	case bankSupervisor:
		return &c.svcBank
	case bankAbort:
		return &c.abtBank
	case bankUndefined:
		return &c.undBank
	default:
		return &c.user
	}
}

// Read implements the register-file read contract of spec.md §4.2.
func (c *CPU) Read(n int, rb RegisterBank) uint32 {
	switch n {
	case 15:
		if c.CPSR.T {
			return c.PC + NarrowPipelineOffset
		}
		return c.PC + WidePipelineOffset
	case 16:
		return c.CPSR.ToUint32()
	case 17:
		mode := rb.mode(c.CPSR.Mode)
		if mode == ModeUser || mode == ModeSystem {
			return c.CPSR.ToUint32()
		}
		return c.spsr[bankForMode(mode)]
	default:
		mode := rb.mode(c.CPSR.Mode)
		b, slot := registerSlot(n, mode)
		return c.bankSlice(b)[slot]
	}
}

// ReadRaw15 returns the stored PC with no prefetch offset applied — the
// architectural PC the monitor reports, per spec.md §4.2.
func (c *CPU) ReadRaw15() uint32 { return c.PC }

// Write implements the register-file write contract of spec.md §4.2.
func (c *CPU) Write(n int, v uint32, rb RegisterBank) {
	switch n {
	case 15:
		c.PC = v &^ 1
	case 16:
		c.CPSR.FromUint32(v)
	case 17:
		mode := rb.mode(c.CPSR.Mode)
		if mode != ModeUser && mode != ModeSystem {
			c.spsr[bankForMode(mode)] = v
		}
	default:
		mode := rb.mode(c.CPSR.Mode)
		b, slot := registerSlot(n, mode)
		c.bankSlice(b)[slot] = v
	}
}

// GetRegister is a convenience wrapper over Read for the current bank,
// matching the teacher's naming for call sites that don't care about
// explicit banking (ordinary instruction execution always operates on the
// current bank).
func (c *CPU) GetRegister(reg int) uint32 { return c.Read(reg, RegisterBankCurrent) }

// SetRegister is the Write counterpart of GetRegister.
func (c *CPU) SetRegister(reg int, value uint32) { c.Write(reg, value, RegisterBankCurrent) }

// GetSP/SetSP/GetLR/SetLR are convenience aliases used throughout the
// executors, matching the teacher's naming.
func (c *CPU) GetSP() uint32         { return c.GetRegister(SP) }
func (c *CPU) SetSP(value uint32)    { c.SetRegister(SP, value) }
func (c *CPU) GetLR() uint32         { return c.GetRegister(LR) }
func (c *CPU) SetLR(value uint32)    { c.SetRegister(LR, value) }

// IncrementPC advances the raw PC by one instruction in the current ISA.
func (c *CPU) IncrementPC() {
	if c.CPSR.T {
		c.PC += 2
	} else {
		c.PC += 4
	}
}

// Branch sets the raw program counter to a new address.
func (c *CPU) Branch(address uint32) { c.PC = address &^ 1 }

// BranchWithLink saves the return address (op_pc + instruction size) in LR
// and branches. opPC is the address of the branch instruction itself.
func (c *CPU) BranchWithLink(opPC, address uint32) {
	if c.CPSR.T {
		c.SetLR(opPC + 2)
	} else {
		c.SetLR(opPC + 4)
	}
	c.Branch(address)
}

// EnterException performs the architectural exception-entry sequence shared
// by SWI, architectural breakpoint, and undefined-instruction traps
// (spec.md §4.3.7): save CPSR to the target mode's SPSR, switch mode, clear
// T, set LR to the return address, and set PC to the fixed vector.
func (c *CPU) EnterException(target Mode, opPC uint32, vector uint32) {
	retOffset := uint32(4)
	if c.CPSR.T {
		retOffset = 2
	}
	saved := c.CPSR.ToUint32()
	c.spsr[bankForMode(target)] = saved
	c.CPSR.Mode = target
	c.CPSR.T = false
	c.Write(LR, opPC+retOffset, RegisterBankCurrent)
	c.PC = vector
}
