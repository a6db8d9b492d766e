package vm

// ExecuteBranch executes B/BL (spec.md §4.3.6).
func ExecuteBranch(vm *VM, inst *Instruction) error {
	opPC := inst.Address
	link := (inst.Opcode >> BranchLinkShift) & Mask1Bit

	offset := inst.Opcode & Offset24BitMask
	if offset&Offset24BitSignBit != 0 {
		offset |= Offset24BitSignExt
	}

	targetAddr := vm.CPU.GetRegister(PCRegister) + (offset << WordToByteShift)

	if link == 1 {
		vm.CPU.BranchWithLink(opPC, targetAddr)
	} else {
		vm.CPU.Branch(targetAddr)
	}
	return nil
}

// ExecuteBranchExchange executes BX Rm / BLX Rm: copies Rm to R15, with the
// low bit selecting T; BLX additionally links (spec.md §4.3.6). This
// instruction is always wide (4 bytes), so the link value is opPC+4
// regardless of the callee's ISA — it must be computed before CPSR.T
// switches to the callee's instruction set.
func ExecuteBranchExchange(vm *VM, inst *Instruction, link bool) error {
	opPC := inst.Address
	rm := int(inst.Opcode & Mask4Bit)
	target := vm.CPU.GetRegister(rm)

	if link {
		vm.CPU.SetLR(opPC + 4)
	}
	vm.CPU.CPSR.T = target&1 != 0
	vm.CPU.Branch(target &^ 1)
	return nil
}

// ExecuteBranchLinkExchangeImmediate executes the unconditional BLX
// (immediate) escape hatch (spec.md §4.3.6): top condition nibble 0xF,
// displacement carries an extra halfword-granularity bit from op[24], and
// the target always runs in the narrow ISA.
func ExecuteBranchLinkExchangeImmediate(vm *VM, inst *Instruction) error {
	opPC := inst.Address
	h := (inst.Opcode >> BranchLinkShift) & Mask1Bit // op[24]: extra halfword bit

	offset := inst.Opcode & Offset24BitMask
	if offset&Offset24BitSignBit != 0 {
		offset |= Offset24BitSignExt
	}

	targetAddr := vm.CPU.GetRegister(PCRegister) + (offset << WordToByteShift) + (h << 1)

	// Always a wide-ISA (4-byte) instruction: link opPC+4 before CPSR.T
	// switches to the narrow-ISA callee.
	vm.CPU.SetLR(opPC + 4)
	vm.CPU.CPSR.T = true
	vm.CPU.Branch(targetAddr)
	return nil
}
