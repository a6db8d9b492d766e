package vm

import (
	"fmt"
)

// Data processing operation codes (spec.md §4.3.1).
const (
	OpAND = 0x0
	OpEOR = 0x1
	OpSUB = 0x2
	OpRSB = 0x3
	OpADD = 0x4
	OpADC = 0x5
	OpSBC = 0x6
	OpRSC = 0x7
	OpTST = 0x8
	OpTEQ = 0x9
	OpCMP = 0xA
	OpCMN = 0xB
	OpORR = 0xC
	OpMOV = 0xD
	OpBIC = 0xE
	OpMVN = 0xF
)

// ExecuteDataProcessing executes a wide-ISA data-processing instruction.
func ExecuteDataProcessing(vm *VM, inst *Instruction) error {
	opcode := (inst.Opcode >> OpcodeShift) & Mask4Bit
	immediate := (inst.Opcode >> IBitShift) & Mask1Bit
	setFlags := inst.SetFlags

	rd := int((inst.Opcode >> RdShift) & Mask4Bit)
	rn := int((inst.Opcode >> RnShift) & Mask4Bit)

	op1 := vm.CPU.GetRegister(rn)

	var op2 uint32
	var shiftCarry bool

	if immediate == 1 {
		imm := inst.Opcode & ImmediateValueMask
		rotation := ((inst.Opcode >> RotationShift) & RotationMask) * RotationMultiplier
		if rotation == 0 {
			op2 = imm
			shiftCarry = vm.CPU.CPSR.C
		} else {
			op2 = (imm >> rotation) | (imm << (BitsInWord - rotation))
			shiftCarry = op2&SignBitMask != 0
		}
	} else {
		rm := int(inst.Opcode & Mask4Bit)
		op2Value := vm.CPU.GetRegister(rm)

		shiftType := ShiftType((inst.Opcode >> ShiftTypePos) & Mask2Bit)
		shiftByReg := (inst.Opcode >> Bit4Pos) & Mask1Bit

		var shiftAmount int
		regShiftZero := false
		if shiftByReg == 1 {
			rs := int((inst.Opcode >> RsShift) & Mask4Bit)
			shiftAmount = int(vm.CPU.GetRegister(rs) & Mask8Bit)
			regShiftZero = shiftAmount == 0
		} else {
			shiftAmount = int((inst.Opcode >> ShiftAmountPos) & Mask5Bit)
		}

		if regShiftZero {
			// Register-specified distance of 0 leaves value and C unchanged.
			op2 = op2Value
			shiftCarry = vm.CPU.CPSR.C
		} else {
			if shiftType == ShiftROR && shiftAmount == 0 && shiftByReg == 0 {
				shiftType = ShiftRRX
			}
			shiftCarry = CalculateShiftCarry(op2Value, shiftAmount, shiftType, vm.CPU.CPSR.C)
			op2 = PerformShift(op2Value, shiftAmount, shiftType, vm.CPU.CPSR.C)
		}
	}

	var result uint32
	var carry, overflow bool
	writeResult := true
	updateFlags := setFlags

	switch opcode {
	case OpAND:
		result = op1 & op2
		carry = shiftCarry
	case OpEOR:
		result = op1 ^ op2
		carry = shiftCarry
	case OpSUB:
		result = op1 - op2
		carry = CalculateSubCarry(op1, op2)
		overflow = CalculateSubOverflow(op1, op2, result)
	case OpRSB:
		result = op2 - op1
		carry = CalculateSubCarry(op2, op1)
		overflow = CalculateSubOverflow(op2, op1, result)
	case OpADD:
		result = op1 + op2
		carry = CalculateAddCarry(op1, op2, result)
		overflow = CalculateAddOverflow(op1, op2, result)
	case OpADC:
		carryIn := uint32(0)
		if vm.CPU.CPSR.C {
			carryIn = 1
		}
		result = op1 + op2 + carryIn
		temp := op1 + op2
		carry = CalculateAddCarry(op1, op2, temp) || CalculateAddCarry(temp, carryIn, result)
		overflow = CalculateAddOverflow(op1, op2, result)
	case OpSBC:
		carryIn := uint32(1)
		if !vm.CPU.CPSR.C {
			carryIn = 0
		}
		result = op1 - op2 - (1 - carryIn)
		carry = CalculateSubCarry(op1, op2+1-carryIn)
		overflow = CalculateSubOverflow(op1, op2+(1-carryIn), result)
	case OpRSC:
		carryIn := uint32(1)
		if !vm.CPU.CPSR.C {
			carryIn = 0
		}
		result = op2 - op1 - (1 - carryIn)
		carry = CalculateSubCarry(op2, op1+1-carryIn)
		overflow = CalculateSubOverflow(op2, op1+(1-carryIn), result)
	case OpTST:
		result = op1 & op2
		carry = shiftCarry
		writeResult = false
		updateFlags = true
	case OpTEQ:
		result = op1 ^ op2
		carry = shiftCarry
		writeResult = false
		updateFlags = true
	case OpCMP:
		result = op1 - op2
		carry = CalculateSubCarry(op1, op2)
		overflow = CalculateSubOverflow(op1, op2, result)
		writeResult = false
		updateFlags = true
	case OpCMN:
		result = op1 + op2
		carry = CalculateAddCarry(op1, op2, result)
		overflow = CalculateAddOverflow(op1, op2, result)
		writeResult = false
		updateFlags = true
	case OpORR:
		result = op1 | op2
		carry = shiftCarry
	case OpMOV:
		result = op2
		carry = shiftCarry
	case OpBIC:
		result = op1 &^ op2
		carry = shiftCarry
	case OpMVN:
		result = ^op2
		carry = shiftCarry
	default:
		return fmt.Errorf("unknown data processing opcode: 0x%X", opcode)
	}

	// Mode-restoring return: S set, Rd = R15 writes CPSR from SPSR[mode]
	// instead of updating NZCV (spec.md §4.3.1).
	if setFlags && rd == PCRegister {
		if writeResult {
			vm.CPU.SetRegister(PCRegister, result)
		}
		spsr := vm.CPU.Read(17, RegisterBankCurrent)
		vm.CPU.CPSR.FromUint32(spsr)
		return nil
	}

	if writeResult {
		vm.CPU.SetRegister(rd, result)
	}

	if updateFlags {
		switch opcode {
		case OpAND, OpEOR, OpTST, OpTEQ, OpORR, OpMOV, OpBIC, OpMVN:
			vm.CPU.CPSR.UpdateFlagsNZC(result, carry)
		default:
			vm.CPU.CPSR.UpdateFlagsNZCV(result, carry, overflow)
		}
	}

	if rd != PCRegister {
		vm.CPU.IncrementPC()
	}

	return nil
}
