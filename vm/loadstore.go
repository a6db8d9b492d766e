package vm

// ExecuteLoadStore executes word/byte/halfword/signed load-store
// instructions (spec.md §4.3.3, §4.3.4).
func ExecuteLoadStore(vm *VM, inst *Instruction) error {
	load := (inst.Opcode >> LBitShift) & Mask1Bit
	byteTransfer := (inst.Opcode >> BBitShift) & Mask1Bit
	writeBack := (inst.Opcode >> WBitShift) & Mask1Bit
	preIndexed := (inst.Opcode >> PBitShift) & Mask1Bit
	addOffset := (inst.Opcode >> UBitShift) & Mask1Bit

	rd := int((inst.Opcode >> RdShift) & Mask4Bit)
	rn := int((inst.Opcode >> RnShift) & Mask4Bit)

	baseAddr := vm.CPU.GetRegister(rn)

	bits27_25 := (inst.Opcode >> Bits27_25Shift) & Mask3Bit
	bit7 := (inst.Opcode >> Bit7Pos) & Mask1Bit
	bit4 := (inst.Opcode >> Bit4Pos) & Mask1Bit
	isHalfword := bits27_25 == 0 && bit7 == 1 && bit4 == 1

	// For halfword/signed transfers, bits[6:5] select STRH/LDRH/LDRSB/LDRSH.
	var halfOp int
	if isHalfword {
		halfOp = int((inst.Opcode >> 5) & Mask2Bit)
	}

	var offset uint32
	if isHalfword {
		immediate := (inst.Opcode >> BBitShift) & Mask1Bit
		if immediate == 1 {
			offsetHigh := (inst.Opcode >> HalfwordHighShift) & HalfwordOffsetHighMask
			offsetLow := inst.Opcode & HalfwordOffsetLowMask
			offset = (offsetHigh << HalfwordLowShift) | offsetLow
		} else {
			rm := int(inst.Opcode & Mask4Bit)
			offset = vm.CPU.GetRegister(rm)
		}
	} else {
		immediate := (inst.Opcode>>IBitShift)&Mask1Bit == 0
		if immediate {
			offset = inst.Opcode & Offset12BitMask
		} else {
			rm := int(inst.Opcode & Mask4Bit)
			offsetReg := vm.CPU.GetRegister(rm)
			shiftType := ShiftType((inst.Opcode >> ShiftTypePos) & Mask2Bit)
			shiftAmount := int((inst.Opcode >> ShiftAmountPos) & Mask5Bit)
			offset = PerformShift(offsetReg, shiftAmount, shiftType, vm.CPU.CPSR.C)
		}
	}

	var effectiveAddr uint32
	if addOffset == 1 {
		effectiveAddr = baseAddr + offset
	} else {
		effectiveAddr = baseAddr - offset
	}

	var accessAddr uint32
	if preIndexed == 1 {
		accessAddr = effectiveAddr
	} else {
		accessAddr = baseAddr
	}

	if load == 1 {
		var value uint32
		switch {
		case isHalfword && halfOp == 1: // LDRH
			value = vm.loadMem(accessAddr, 2, false)
		case isHalfword && halfOp == 2: // LDRSB
			value = vm.loadMem(accessAddr, 1, true)
		case isHalfword && halfOp == 3: // LDRSH
			value = vm.loadMem(accessAddr, 2, true)
		case byteTransfer == 1:
			value = vm.loadMem(accessAddr, 1, false)
		default:
			value = vm.loadMem(accessAddr, 4, false)
		}
		vm.CPU.SetRegister(rd, value)
	} else {
		value := vm.CPU.GetRegister(rd)
		switch {
		case isHalfword:
			vm.storeMem(accessAddr, value, 2)
		case byteTransfer == 1:
			vm.storeMem(accessAddr, value, 1)
		default:
			vm.storeMem(accessAddr, value, 4)
		}
	}

	if (preIndexed == 1 && writeBack == 1) || preIndexed == 0 {
		if rn != PCRegister {
			vm.CPU.SetRegister(rn, effectiveAddr)
		}
	}

	if !(load == 1 && rd == PCRegister) {
		vm.CPU.IncrementPC()
	}

	return nil
}
