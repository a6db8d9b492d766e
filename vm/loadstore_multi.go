package vm

import "fmt"

// ExecuteLoadStoreMultiple executes LDM/STM (spec.md §4.3). Register list
// order follows register number regardless of encoding order; the S-bit
// (bit 22) selects the user-mode bank for transfer, or (LDM with R15 in the
// list) triggers a mode-restoring return from SPSR.
func ExecuteLoadStoreMultiple(vm *VM, inst *Instruction) error {
	load := (inst.Opcode >> LBitShift) & Mask1Bit
	writeBack := (inst.Opcode >> WBitShift) & Mask1Bit
	sBit := (inst.Opcode >> BBitShift) & Mask1Bit
	preIndexed := (inst.Opcode >> PBitShift) & Mask1Bit
	addOffset := (inst.Opcode >> UBitShift) & Mask1Bit

	rn := int((inst.Opcode >> RnShift) & Mask4Bit)
	registerList := inst.Opcode & RegisterListMask

	count := 0
	for i := 0; i < 16; i++ {
		if registerList&(1<<uint(i)) != 0 {
			count++
		}
	}
	countWords, err := SafeIntToUint32(count)
	if err != nil {
		return fmt.Errorf("load/store multiple: %w", err)
	}

	baseAddr := vm.CPU.GetRegister(rn)

	var startAddr uint32
	if addOffset == 1 {
		startAddr = baseAddr
	} else {
		startAddr = baseAddr - countWords*4
	}

	// Transfers walk upward through the computed range. Increment-before
	// (IB) and decrement-after (DA) skip the word at the range's low end:
	// IB transfers base+4..base+4n, DA base-4n+4..base, DB base-4n..base-4.
	addr := startAddr
	if preIndexed == addOffset {
		addr += 4
	}

	userBankTransfer := sBit == 1 && !(load == 1 && registerList&(1<<PCRegister) != 0)
	bank := RegisterBankCurrent
	if userBankTransfer {
		bank = RegisterBankUser
	}

	loadedPC := false
	for i := 0; i < 16; i++ {
		if registerList&(1<<uint(i)) == 0 {
			continue
		}
		if load == 1 {
			value := vm.loadMem(addr, 4, false)
			vm.CPU.Write(i, value, bank)
			if i == PCRegister {
				loadedPC = true
			}
		} else {
			value := vm.CPU.Read(i, bank)
			vm.storeMem(addr, value, 4)
		}
		addr += 4
	}

	if writeBack == 1 && rn != PCRegister {
		if addOffset == 1 {
			vm.CPU.SetRegister(rn, baseAddr+countWords*4)
		} else {
			vm.CPU.SetRegister(rn, baseAddr-countWords*4)
		}
	}

	// LDM with R15 in the list and S set restores CPSR from SPSR[mode]
	// (mode-restoring return); otherwise R15 is simply written as data.
	if load == 1 && loadedPC && sBit == 1 {
		spsr := vm.CPU.Read(17, RegisterBankCurrent)
		vm.CPU.CPSR.FromUint32(spsr)
	}

	if !loadedPC {
		vm.CPU.IncrementPC()
	}

	return nil
}
