package vm

import (
	"fmt"
)

// ExecutePSRTransfer executes MRS/MSR (spec.md §4.2, §4.3).
func ExecutePSRTransfer(vm *VM, inst *Instruction) error {
	isMSR := (inst.Opcode >> MultiplyAShift) & Mask1Bit
	if isMSR == 0 {
		return executeMRS(vm, inst)
	}
	return executeMSR(vm, inst)
}

// psrRegisterNumber reads bit 22: 0 = CPSR, 1 = SPSR of the current mode.
func psrRegisterNumber(inst *Instruction) int {
	if (inst.Opcode>>BBitShift)&Mask1Bit == 1 {
		return 17 // SPSR
	}
	return 16 // CPSR
}

func executeMRS(vm *VM, inst *Instruction) error {
	rd := int((inst.Opcode >> RdShift) & Mask4Bit)
	if rd == PCRegister {
		return fmt.Errorf("MRS: R15 (PC) cannot be used as destination register")
	}

	value := vm.CPU.Read(psrRegisterNumber(inst), RegisterBankCurrent)
	vm.CPU.SetRegister(rd, value)
	vm.CPU.IncrementPC()
	return nil
}

// msrFieldMask maps the instruction's field-mask bits (19:16) to a byte
// mask over the 32-bit PSR value: bit 19 selects bits 31-24 (flags), bit 16
// selects bits 7-0 (control: I/F/T/mode). Bits 18/17 select the unused
// middle bytes and are accepted but have no effect on any defined field.
func msrFieldMask(inst *Instruction) uint32 {
	fieldBits := (inst.Opcode >> 16) & Mask4Bit
	var mask uint32
	if fieldBits&0x8 != 0 {
		mask |= 0xFF000000
	}
	if fieldBits&0x4 != 0 {
		mask |= 0x00FF0000
	}
	if fieldBits&0x2 != 0 {
		mask |= 0x0000FF00
	}
	if fieldBits&0x1 != 0 {
		mask |= 0x000000FF
	}
	return mask
}

func executeMSR(vm *VM, inst *Instruction) error {
	immediateBit := (inst.Opcode >> IBitShift) & Mask1Bit

	var sourceValue uint32
	if immediateBit == 1 {
		immediate := inst.Opcode & ImmediateValueMask
		rotate := ((inst.Opcode >> RotationShift) & RotationMask) * RotationMultiplier
		if rotate == 0 {
			sourceValue = immediate
		} else {
			sourceValue = (immediate >> rotate) | (immediate << (BitsInWord - rotate))
		}
	} else {
		rm := int(inst.Opcode & Mask4Bit)
		if rm == PCRegister {
			return fmt.Errorf("MSR: R15 (PC) cannot be used as source register")
		}
		sourceValue = vm.CPU.GetRegister(rm)
	}

	reg := psrRegisterNumber(inst)
	mask := msrFieldMask(inst)

	current := vm.CPU.Read(reg, RegisterBankCurrent)
	// A privileged mode writing the control byte (mode/T/I/F, mask bit 16)
	// can change mode; user mode MSR is restricted to the flag byte by the
	// architecture, but since this core has no privilege enforcement beyond
	// the mode field itself, the mask is honored as given.
	updated := (current &^ mask) | (sourceValue & mask)
	vm.CPU.Write(reg, updated, RegisterBankCurrent)

	vm.CPU.IncrementPC()
	return nil
}
