package vm

// Narrow (16-bit) instruction decode and execution (spec.md §4.4), grounded
// on jimulator.c's data0/data1/transfer0/transfer1/sp_pc/lsm_b/thumb_branch
// family split. Unlike the wide decoder, narrow instructions are small
// enough to decode and execute in one pass per family rather than as a
// separate classify/fill/execute pipeline.

func thumbReg(op uint16, shift uint) int { return int((op >> shift) & 0x7) }

func signExtend11(v uint16) int32 {
	if v&0x400 != 0 {
		return int32(v) - 0x800
	}
	return int32(v)
}

// ExecuteNarrow decodes and executes one 16-bit instruction at opPC.
func ExecuteNarrow(vm *VM, opPC uint32, op uint16) error {
	switch (op >> 13) & 0x7 {
	case 0:
		return thumbFamily000(vm, opPC, op)
	case 1:
		return thumbImmediateOp(vm, opPC, op)
	case 2:
		return thumbFamily010(vm, opPC, op)
	case 3:
		return thumbLoadStoreImmWordByte(vm, opPC, op)
	case 4:
		return thumbFamily100(vm, opPC, op)
	case 5:
		return thumbFamily101(vm, opPC, op)
	case 6:
		return thumbFamily110(vm, opPC, op)
	default: // 7
		return thumbFamily111(vm, opPC, op)
	}
}

// thumbFamily000 covers shift-by-immediate (LSL/LSR/ASR #imm5) and the
// register/3-bit-immediate ADD/SUB forms, selected by bits 12-11.
func thumbFamily000(vm *VM, opPC uint32, op uint16) error {
	sel := (op >> 11) & 0x3
	if sel == 0x3 {
		sub := (op>>9)&1 == 1
		immForm := (op>>10)&1 == 1
		rn := thumbReg(op, 3)
		rd := thumbReg(op, 0)
		var operand2 uint32
		if immForm {
			operand2 = uint32((op >> 6) & 0x7)
		} else {
			operand2 = vm.CPU.GetRegister(thumbReg(op, 6))
		}
		op1 := vm.CPU.GetRegister(rn)
		var result uint32
		if sub {
			result = op1 - operand2
			vm.CPU.CPSR.UpdateFlagsNZCV(result, CalculateSubCarry(op1, operand2), CalculateSubOverflow(op1, operand2, result))
		} else {
			result = op1 + operand2
			vm.CPU.CPSR.UpdateFlagsNZCV(result, CalculateAddCarry(op1, operand2, result), CalculateAddOverflow(op1, operand2, result))
		}
		vm.CPU.SetRegister(rd, result)
		vm.CPU.IncrementPC()
		return nil
	}

	shiftType := ShiftType(sel) // 0=LSL, 1=LSR, 2=ASR
	imm5 := int((op >> 6) & 0x1F)
	rm := thumbReg(op, 3)
	rd := thumbReg(op, 0)
	value := vm.CPU.GetRegister(rm)

	shiftAmt := imm5
	if shiftType != ShiftLSL && shiftAmt == 0 {
		shiftAmt = 32
	}
	carry := CalculateShiftCarry(value, shiftAmt, shiftType, vm.CPU.CPSR.C)
	result := PerformShift(value, shiftAmt, shiftType, vm.CPU.CPSR.C)
	vm.CPU.SetRegister(rd, result)
	vm.CPU.CPSR.UpdateFlagsNZC(result, carry)
	vm.CPU.IncrementPC()
	return nil
}

// thumbImmediateOp covers MOV/CMP/ADD/SUB Rd, #imm8 (bits 12-11 select op).
func thumbImmediateOp(vm *VM, opPC uint32, op uint16) error {
	opSel := (op >> 11) & 0x3
	rd := int((op >> 8) & 0x7)
	imm := uint32(op & 0xFF)
	op1 := vm.CPU.GetRegister(rd)

	switch opSel {
	case 0: // MOV
		vm.CPU.SetRegister(rd, imm)
		vm.CPU.CPSR.UpdateFlagsNZ(imm)
	case 1: // CMP
		result := op1 - imm
		vm.CPU.CPSR.UpdateFlagsNZCV(result, CalculateSubCarry(op1, imm), CalculateSubOverflow(op1, imm, result))
	case 2: // ADD
		result := op1 + imm
		vm.CPU.SetRegister(rd, result)
		vm.CPU.CPSR.UpdateFlagsNZCV(result, CalculateAddCarry(op1, imm, result), CalculateAddOverflow(op1, imm, result))
	case 3: // SUB
		result := op1 - imm
		vm.CPU.SetRegister(rd, result)
		vm.CPU.CPSR.UpdateFlagsNZCV(result, CalculateSubCarry(op1, imm), CalculateSubOverflow(op1, imm, result))
	}
	vm.CPU.IncrementPC()
	return nil
}

// thumbFamily010 covers low-register ALU ops, high-register ops/BX/BLX,
// PC-relative load, and register-offset load/store (word/byte/halfword/signed).
func thumbFamily010(vm *VM, opPC uint32, op uint16) error {
	top6 := (op >> 10) & 0x3F
	switch {
	case top6 == 0x10:
		return thumbALU(vm, op)
	case top6 == 0x11:
		return thumbHiReg(vm, opPC, op)
	case top6>>1 == 0x09:
		return thumbPCRelLoad(vm, op)
	case top6&0x3C == 0x14:
		return thumbLoadStoreReg(vm, op)
	default:
		vm.CPU.EnterException(ModeUndefined, opPC, VectorUndefined)
		return nil
	}
}

func thumbALU(vm *VM, op uint16) error {
	rd := thumbReg(op, 0)
	rs := thumbReg(op, 3)
	aluOp := (op >> 6) & 0xF
	rdVal := vm.CPU.GetRegister(rd)
	rsVal := vm.CPU.GetRegister(rs)

	var result uint32
	writeResult := true

	switch aluOp {
	case 0x0: // AND
		result = rdVal & rsVal
		vm.CPU.CPSR.UpdateFlagsNZ(result)
	case 0x1: // EOR
		result = rdVal ^ rsVal
		vm.CPU.CPSR.UpdateFlagsNZ(result)
	case 0x2: // LSL
		amt := int(rsVal & 0xFF)
		var carry bool
		if amt == 0 {
			carry, result = vm.CPU.CPSR.C, rdVal
		} else {
			carry = CalculateShiftCarry(rdVal, amt, ShiftLSL, vm.CPU.CPSR.C)
			result = PerformShift(rdVal, amt, ShiftLSL, vm.CPU.CPSR.C)
		}
		vm.CPU.CPSR.UpdateFlagsNZC(result, carry)
	case 0x3: // LSR
		amt := int(rsVal & 0xFF)
		var carry bool
		if amt == 0 {
			carry, result = vm.CPU.CPSR.C, rdVal
		} else {
			carry = CalculateShiftCarry(rdVal, amt, ShiftLSR, vm.CPU.CPSR.C)
			result = PerformShift(rdVal, amt, ShiftLSR, vm.CPU.CPSR.C)
		}
		vm.CPU.CPSR.UpdateFlagsNZC(result, carry)
	case 0x4: // ASR
		amt := int(rsVal & 0xFF)
		var carry bool
		if amt == 0 {
			carry, result = vm.CPU.CPSR.C, rdVal
		} else {
			carry = CalculateShiftCarry(rdVal, amt, ShiftASR, vm.CPU.CPSR.C)
			result = PerformShift(rdVal, amt, ShiftASR, vm.CPU.CPSR.C)
		}
		vm.CPU.CPSR.UpdateFlagsNZC(result, carry)
	case 0x5: // ADC
		carryIn := uint32(0)
		if vm.CPU.CPSR.C {
			carryIn = 1
		}
		result = rdVal + rsVal + carryIn
		temp := rdVal + rsVal
		carry := CalculateAddCarry(rdVal, rsVal, temp) || CalculateAddCarry(temp, carryIn, result)
		vm.CPU.CPSR.UpdateFlagsNZCV(result, carry, CalculateAddOverflow(rdVal, rsVal, result))
	case 0x6: // SBC
		carryIn := uint32(1)
		if !vm.CPU.CPSR.C {
			carryIn = 0
		}
		result = rdVal - rsVal - (1 - carryIn)
		carry := CalculateSubCarry(rdVal, rsVal+1-carryIn)
		vm.CPU.CPSR.UpdateFlagsNZCV(result, carry, CalculateSubOverflow(rdVal, rsVal+(1-carryIn), result))
	case 0x7: // ROR
		amt := int(rsVal & 0xFF)
		carry := CalculateShiftCarry(rdVal, amt, ShiftROR, vm.CPU.CPSR.C)
		result = PerformShift(rdVal, amt, ShiftROR, vm.CPU.CPSR.C)
		vm.CPU.CPSR.UpdateFlagsNZC(result, carry)
	case 0x8: // TST
		result = rdVal & rsVal
		vm.CPU.CPSR.UpdateFlagsNZ(result)
		writeResult = false
	case 0x9: // NEG
		result = 0 - rsVal
		vm.CPU.CPSR.UpdateFlagsNZCV(result, CalculateSubCarry(0, rsVal), CalculateSubOverflow(0, rsVal, result))
	case 0xA: // CMP
		result = rdVal - rsVal
		vm.CPU.CPSR.UpdateFlagsNZCV(result, CalculateSubCarry(rdVal, rsVal), CalculateSubOverflow(rdVal, rsVal, result))
		writeResult = false
	case 0xB: // CMN
		result = rdVal + rsVal
		vm.CPU.CPSR.UpdateFlagsNZCV(result, CalculateAddCarry(rdVal, rsVal, result), CalculateAddOverflow(rdVal, rsVal, result))
		writeResult = false
	case 0xC: // ORR
		result = rdVal | rsVal
		vm.CPU.CPSR.UpdateFlagsNZ(result)
	case 0xD: // MUL
		result = rdVal * rsVal
		vm.CPU.CPSR.UpdateFlagsNZ(result)
	case 0xE: // BIC
		result = rdVal &^ rsVal
		vm.CPU.CPSR.UpdateFlagsNZ(result)
	case 0xF: // MVN
		result = ^rsVal
		vm.CPU.CPSR.UpdateFlagsNZ(result)
	}

	if writeResult {
		vm.CPU.SetRegister(rd, result)
	}
	vm.CPU.IncrementPC()
	return nil
}

func thumbHiReg(vm *VM, opPC uint32, op uint16) error {
	opSel := (op >> 8) & 0x3
	h1 := (op >> 7) & 1
	h2 := (op >> 6) & 1
	rd := int((op & 0x7) | (h1 << 3))
	rm := int(((op >> 3) & 0x7) | (h2 << 3))

	switch opSel {
	case 0: // ADD
		result := vm.CPU.GetRegister(rd) + vm.CPU.GetRegister(rm)
		if rd == PCRegister {
			vm.CPU.Branch(result)
		} else {
			vm.CPU.SetRegister(rd, result)
			vm.CPU.IncrementPC()
		}
	case 1: // CMP
		op1 := vm.CPU.GetRegister(rd)
		op2 := vm.CPU.GetRegister(rm)
		result := op1 - op2
		vm.CPU.CPSR.UpdateFlagsNZCV(result, CalculateSubCarry(op1, op2), CalculateSubOverflow(op1, op2, result))
		vm.CPU.IncrementPC()
	case 2: // MOV
		result := vm.CPU.GetRegister(rm)
		if rd == PCRegister {
			vm.CPU.Branch(result)
		} else {
			vm.CPU.SetRegister(rd, result)
			vm.CPU.IncrementPC()
		}
	case 3: // BX/BLX
		link := h1 == 1
		target := vm.CPU.GetRegister(rm)
		if link {
			// Always a narrow-ISA (2-byte) instruction: link opPC+2 before
			// CPSR.T potentially switches to the wide-ISA callee.
			vm.CPU.SetLR(opPC + 2)
		}
		vm.CPU.CPSR.T = target&1 != 0
		vm.CPU.Branch(target &^ 1)
	}
	return nil
}

func thumbPCRelLoad(vm *VM, op uint16) error {
	rd := int((op >> 8) & 0x7)
	imm := uint32(op&0xFF) * 4
	base := vm.CPU.GetRegister(PCRegister) &^ 2
	vm.CPU.SetRegister(rd, vm.loadMem(base+imm, 4, false))
	vm.CPU.IncrementPC()
	return nil
}

func thumbLoadStoreReg(vm *VM, op uint16) error {
	rd := thumbReg(op, 0)
	rb := thumbReg(op, 3)
	ro := thumbReg(op, 6)
	bit11 := (op >> 11) & 1
	bit10 := (op >> 10) & 1
	bit9 := (op >> 9) & 1
	base := vm.CPU.GetRegister(rb) + vm.CPU.GetRegister(ro)

	if bit9 == 0 {
		load := bit11 == 1
		byteOp := bit10 == 1
		if load {
			if byteOp {
				vm.CPU.SetRegister(rd, vm.loadMem(base, 1, false))
			} else {
				vm.CPU.SetRegister(rd, vm.loadMem(base, 4, false))
			}
		} else {
			if byteOp {
				vm.storeMem(base, vm.CPU.GetRegister(rd), 1)
			} else {
				vm.storeMem(base, vm.CPU.GetRegister(rd), 4)
			}
		}
	} else {
		h := bit11 == 1
		s := bit10 == 1
		switch {
		case !h && !s: // STRH
			vm.storeMem(base, vm.CPU.GetRegister(rd), 2)
		case !h && s: // LDSB
			vm.CPU.SetRegister(rd, vm.loadMem(base, 1, true))
		case h && !s: // LDRH
			vm.CPU.SetRegister(rd, vm.loadMem(base, 2, false))
		default: // LDSH
			vm.CPU.SetRegister(rd, vm.loadMem(base, 2, true))
		}
	}
	vm.CPU.IncrementPC()
	return nil
}

// thumbLoadStoreImmWordByte handles STR/LDR/STRB/LDRB Rd, [Rb, #imm5].
func thumbLoadStoreImmWordByte(vm *VM, opPC uint32, op uint16) error {
	byteOp := (op>>12)&1 == 1
	load := (op>>11)&1 == 1
	offset := uint32((op >> 6) & 0x1F)
	if !byteOp {
		offset *= 4
	}
	rb := thumbReg(op, 3)
	rd := thumbReg(op, 0)
	addr := vm.CPU.GetRegister(rb) + offset

	if load {
		if byteOp {
			vm.CPU.SetRegister(rd, vm.loadMem(addr, 1, false))
		} else {
			vm.CPU.SetRegister(rd, vm.loadMem(addr, 4, false))
		}
	} else {
		if byteOp {
			vm.storeMem(addr, vm.CPU.GetRegister(rd), 1)
		} else {
			vm.storeMem(addr, vm.CPU.GetRegister(rd), 4)
		}
	}
	vm.CPU.IncrementPC()
	return nil
}

// thumbFamily100 covers STRH/LDRH Rd, [Rb, #imm5] and SP-relative load/store.
func thumbFamily100(vm *VM, opPC uint32, op uint16) error {
	if (op>>12)&1 == 0 {
		load := (op>>11)&1 == 1
		offset := uint32((op>>6)&0x1F) * 2
		rb := thumbReg(op, 3)
		rd := thumbReg(op, 0)
		addr := vm.CPU.GetRegister(rb) + offset
		if load {
			vm.CPU.SetRegister(rd, vm.loadMem(addr, 2, false))
		} else {
			vm.storeMem(addr, vm.CPU.GetRegister(rd), 2)
		}
		vm.CPU.IncrementPC()
		return nil
	}

	load := (op>>11)&1 == 1
	rd := int((op >> 8) & 0x7)
	offset := uint32(op&0xFF) * 4
	addr := vm.CPU.GetSP() + offset
	if load {
		vm.CPU.SetRegister(rd, vm.loadMem(addr, 4, false))
	} else {
		vm.storeMem(addr, vm.CPU.GetRegister(rd), 4)
	}
	vm.CPU.IncrementPC()
	return nil
}

// thumbFamily101 covers address generation, SP adjustment, PUSH/POP, and the
// narrow breakpoint/undefined encodings.
func thumbFamily101(vm *VM, opPC uint32, op uint16) error {
	if (op>>12)&1 == 0 {
		return thumbAddrGen(vm, op)
	}
	b11_8 := (op >> 8) & 0xF
	switch b11_8 {
	case 0x0:
		return thumbSPAdjust(vm, op)
	case 0x4, 0x5, 0xC, 0xD:
		return thumbPushPop(vm, op)
	case 0xE:
		vm.CPU.EnterException(ModeAbort, opPC, VectorArchBreakpoint)
		return nil
	default:
		vm.CPU.EnterException(ModeUndefined, opPC, VectorUndefined)
		return nil
	}
}

func thumbAddrGen(vm *VM, op uint16) error {
	sp := (op>>11)&1 == 1
	rd := int((op >> 8) & 0x7)
	imm := uint32(op&0xFF) * 4
	var base uint32
	if sp {
		base = vm.CPU.GetSP()
	} else {
		base = vm.CPU.GetRegister(PCRegister) &^ 2
	}
	vm.CPU.SetRegister(rd, base+imm)
	vm.CPU.IncrementPC()
	return nil
}

func thumbSPAdjust(vm *VM, op uint16) error {
	negative := (op>>7)&1 == 1
	imm := uint32(op&0x7F) * 4
	sp := vm.CPU.GetSP()
	if negative {
		sp -= imm
	} else {
		sp += imm
	}
	vm.CPU.SetSP(sp)
	vm.CPU.IncrementPC()
	return nil
}

func thumbPushPop(vm *VM, op uint16) error {
	pop := (op>>11)&1 == 1
	extra := (op>>8)&1 == 1 // LR on push, PC on pop
	regList := byte(op & 0xFF)
	sp := vm.CPU.GetSP()

	if pop {
		for i := 0; i < 8; i++ {
			if regList&(1<<uint(i)) != 0 {
				vm.CPU.SetRegister(i, vm.loadMem(sp, 4, false))
				sp += 4
			}
		}
		if extra {
			v := vm.loadMem(sp, 4, false)
			sp += 4
			vm.CPU.SetSP(sp)
			vm.CPU.CPSR.T = v&1 != 0
			vm.CPU.Branch(v)
			return nil
		}
		vm.CPU.SetSP(sp)
		vm.CPU.IncrementPC()
		return nil
	}

	count := 0
	for i := 0; i < 8; i++ {
		if regList&(1<<uint(i)) != 0 {
			count++
		}
	}
	if extra {
		count++
	}
	sp -= uint32(count) * 4
	vm.CPU.SetSP(sp)
	addr := sp
	for i := 0; i < 8; i++ {
		if regList&(1<<uint(i)) != 0 {
			vm.storeMem(addr, vm.CPU.GetRegister(i), 4)
			addr += 4
		}
	}
	if extra {
		vm.storeMem(addr, vm.CPU.GetLR(), 4)
	}
	vm.CPU.IncrementPC()
	return nil
}

// thumbFamily110 covers narrow LDM/STM and conditional branch/SWI.
func thumbFamily110(vm *VM, opPC uint32, op uint16) error {
	if (op>>12)&1 == 0 {
		load := (op>>11)&1 == 1
		rb := int((op >> 8) & 0x7)
		regList := byte(op & 0xFF)
		addr := vm.CPU.GetRegister(rb)
		for i := 0; i < 8; i++ {
			if regList&(1<<uint(i)) != 0 {
				if load {
					vm.CPU.SetRegister(i, vm.loadMem(addr, 4, false))
				} else {
					vm.storeMem(addr, vm.CPU.GetRegister(i), 4)
				}
				addr += 4
			}
		}
		vm.CPU.SetRegister(rb, addr)
		vm.CPU.IncrementPC()
		return nil
	}

	cond := ConditionCode((op >> 8) & 0xF)
	if cond == CondNV {
		callNumber := uint32(op & 0xFF)
		return ExecuteSWI(vm, &Instruction{Address: opPC, Opcode: callNumber, Type: InstSWI})
	}
	if !vm.CPU.CPSR.EvaluateCondition(cond) {
		vm.CPU.IncrementPC()
		return nil
	}
	offset := int32(int8(op&0xFF)) * 2
	target := uint32(int64(vm.CPU.GetRegister(PCRegister)) + int64(offset))
	vm.CPU.Branch(target)
	return nil
}

// thumbFamily111 covers unconditional branch and the two-halfword BL/BLX
// long-branch sequence.
func thumbFamily111(vm *VM, opPC uint32, op uint16) error {
	top5 := (op >> 11) & 0x1F
	switch top5 {
	case 0x1C: // unconditional branch
		offset := signExtend11(op&0x7FF) * 2
		target := uint32(int64(vm.CPU.GetRegister(PCRegister)) + int64(offset))
		vm.CPU.Branch(target)
		return nil
	case 0x1E: // BL prefix: stash high bits of the offset in LR
		high := signExtend11(op & 0x7FF)
		lr := uint32(int64(vm.CPU.GetRegister(PCRegister)) + int64(high)<<12)
		vm.CPU.SetLR(lr)
		vm.CPU.IncrementPC()
		return nil
	case 0x1F, 0x1D: // BL / BLX suffix
		offsetLow := uint32(op&0x7FF) << 1
		target := vm.CPU.GetLR() + offsetLow
		retAddr := (opPC + 2) | 1
		if top5 == 0x1D {
			target &^= 3
			vm.CPU.CPSR.T = false
		}
		vm.CPU.SetLR(retAddr)
		vm.CPU.Branch(target)
		return nil
	default:
		vm.CPU.EnterException(ModeUndefined, opPC, VectorUndefined)
		return nil
	}
}
