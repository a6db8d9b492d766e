package vm

import (
	"fmt"
)

// ExecuteMultiply executes short-form (MUL/MLA) and long-form
// (UMULL/UMLAL/SMULL/SMLAL) multiply instructions (spec.md §4.3.2).
func ExecuteMultiply(vm *VM, inst *Instruction) error {
	long := (inst.Opcode >> 23) & Mask1Bit
	if long == 1 {
		return executeLongMultiply(vm, inst)
	}
	return executeShortMultiply(vm, inst)
}

func executeShortMultiply(vm *VM, inst *Instruction) error {
	accumulate := (inst.Opcode >> MultiplyAShift) & Mask1Bit
	setFlags := inst.SetFlags

	rd := int((inst.Opcode >> RnShift) & Mask4Bit) // bits 19-16
	rn := int((inst.Opcode >> RdShift) & Mask4Bit) // bits 15-12, accumulate operand
	rs := int((inst.Opcode >> RsShift) & Mask4Bit)
	rm := int(inst.Opcode & Mask4Bit)

	if rd == rm {
		return fmt.Errorf("multiply: Rd and Rm must be different registers (Rd=%d, Rm=%d)", rd, rm)
	}
	if rd == PCRegister || rm == PCRegister || rs == PCRegister || (accumulate == 1 && rn == PCRegister) {
		return fmt.Errorf("multiply: R15 (PC) cannot be used in multiply instructions")
	}

	op1 := vm.CPU.GetRegister(rm)
	op2 := vm.CPU.GetRegister(rs)

	result := op1 * op2
	if accumulate == 1 {
		result += vm.CPU.GetRegister(rn)
	}

	vm.CPU.SetRegister(rd, result)

	if setFlags {
		vm.CPU.CPSR.UpdateFlagsNZ(result)
	}

	vm.CPU.IncrementPC()
	return nil
}

func executeLongMultiply(vm *VM, inst *Instruction) error {
	signed := (inst.Opcode >> 22) & Mask1Bit
	accumulate := (inst.Opcode >> MultiplyAShift) & Mask1Bit
	setFlags := inst.SetFlags

	rdHi := int((inst.Opcode >> RnShift) & Mask4Bit) // bits 19-16
	rdLo := int((inst.Opcode >> RdShift) & Mask4Bit) // bits 15-12
	rs := int((inst.Opcode >> RsShift) & Mask4Bit)
	rm := int(inst.Opcode & Mask4Bit)

	if rdHi == rdLo || rdHi == rm || rdLo == rm {
		return fmt.Errorf("long multiply: RdHi, RdLo, Rm must be distinct registers")
	}
	if rdHi == PCRegister || rdLo == PCRegister || rs == PCRegister || rm == PCRegister {
		return fmt.Errorf("long multiply: R15 (PC) cannot be used as an operand")
	}

	var result uint64
	if signed == 1 {
		a := int64(int32(vm.CPU.GetRegister(rm)))
		b := int64(int32(vm.CPU.GetRegister(rs)))
		result = uint64(a * b)
	} else {
		a := uint64(vm.CPU.GetRegister(rm))
		b := uint64(vm.CPU.GetRegister(rs))
		result = a * b
	}

	if accumulate == 1 {
		acc := uint64(vm.CPU.GetRegister(rdHi))<<32 | uint64(vm.CPU.GetRegister(rdLo))
		result += acc
	}

	vm.CPU.SetRegister(rdLo, uint32(result))
	vm.CPU.SetRegister(rdHi, uint32(result>>32))

	if setFlags {
		vm.CPU.CPSR.N = result&(1<<63) != 0
		vm.CPU.CPSR.Z = result == 0
	}

	vm.CPU.IncrementPC()
	return nil
}
