package vm

import "strconv"

// swiNoCursor marks that no multi-byte SWI (WRITE_STRING/WRITE_DEC) is
// mid-flight.
const swiNoCursor = 0xFFFFFFFF

// ExecuteSWI executes SWI 0-4 (the intercepted console calls, spec.md §6.3)
// or enters the architectural supervisor-call trap for any other call
// number (spec.md §4.3.7). Call numbers 0/3/4 can stall cooperatively on a
// full output buffer and 1 on an empty input buffer: the stalled handler
// leaves PC at the SWI instruction so the next Tick retries it, grounded on
// jimulator.c's swi_dispatch() busy-wait-via-reschedule pattern.
func ExecuteSWI(vm *VM, inst *Instruction) error {
	callNumber := inst.Opcode & Offset24BitMask

	switch callNumber {
	case 0:
		return swiWriteChar(vm, inst)
	case 1:
		return swiReadChar(vm, inst)
	case 2:
		vm.Status = StatusStoppedByProgram
		vm.CPU.IncrementPC()
		return nil
	case 3:
		return swiWriteString(vm, inst)
	case 4:
		return swiWriteDecimal(vm, inst)
	default:
		vm.CPU.EnterException(ModeSupervisor, inst.Address, VectorSWI)
		return nil
	}
}

func (vm *VM) swiBeginOrContinue(addr uint32) {
	if vm.swiCursorPC != addr {
		vm.swiCursorPC = addr
		vm.swiCursor = 0
	}
}

func (vm *VM) swiComplete() {
	vm.swiCursorPC = swiNoCursor
	vm.swiCursor = 0
	vm.CPU.IncrementPC()
}

func swiWriteChar(vm *VM, inst *Instruction) error {
	term := vm.Terminals.Device(0)
	b := byte(vm.CPU.GetRegister(R0))
	if !term.Out.Push(b) {
		return nil // output full: PC unchanged, retried next tick
	}
	vm.CPU.IncrementPC()
	return nil
}

func swiReadChar(vm *VM, inst *Instruction) error {
	term := vm.Terminals.Device(0)
	b, ok := term.In.Pop()
	if !ok {
		return nil // input empty: PC unchanged, retried next tick
	}
	vm.CPU.SetRegister(R0, uint32(b))
	vm.CPU.IncrementPC()
	return nil
}

func swiWriteString(vm *VM, inst *Instruction) error {
	vm.swiBeginOrContinue(inst.Address)
	term := vm.Terminals.Device(0)
	base := vm.CPU.GetRegister(R0)
	for {
		b := vm.Memory.ReadByte(base + vm.swiCursor)
		if b == 0 {
			vm.swiComplete()
			return nil
		}
		if !term.Out.Push(b) {
			return nil // stalled mid-string; cursor position preserved
		}
		vm.swiCursor++
	}
}

func swiWriteDecimal(vm *VM, inst *Instruction) error {
	vm.swiBeginOrContinue(inst.Address)
	term := vm.Terminals.Device(0)
	digits := strconv.FormatUint(uint64(vm.CPU.GetRegister(R0)), 10)
	for int(vm.swiCursor) < len(digits) {
		if !term.Out.Push(digits[vm.swiCursor]) {
			return nil // stalled mid-number; cursor position preserved
		}
		vm.swiCursor++
	}
	vm.swiComplete()
	return nil
}
