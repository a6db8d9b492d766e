package vm

import "sync"

// InstructionType classifies a decoded wide-ISA instruction for dispatch.
type InstructionType int

const (
	InstUnknown InstructionType = iota
	InstDataProcessing
	InstMultiply
	InstLoadStore
	InstLoadStoreMultiple
	InstBranch
	InstBranchExchange
	InstBranchLinkExchangeImm
	InstSWI
	InstPSRTransfer
	InstUndefined
	InstBreakpoint
)

// Instruction is the decoded form of one wide-ISA opcode, produced by
// Decode and consumed by Execute.
type Instruction struct {
	Address   uint32
	Opcode    uint32
	Type      InstructionType
	Condition ConditionCode
	SetFlags  bool // S bit
	Link      bool // BX vs BLX (register)
}

// StepOutcome reports what a single Step observed, for the scheduler to
// translate into a monitor status byte (spec.md §4.8).
type StepOutcome int

const (
	OutcomeNormal StepOutcome = iota
	OutcomeBreakpoint
	OutcomeWatchpoint
	OutcomeMemFault
)

// Status byte values (spec.md §3/§4.8). The top two bits classify reset
// (00), stopped (01), and running (10); running's low bits distinguish
// free-run, transparent-through-call-or-SWI, and bounded stepping.
const (
	StatusReset                 byte = 0x00
	StatusBusy                  byte = 0x01 // unused: every monitor opcode completes within one poll
	StatusStopped               byte = 0x40
	StatusStoppedBreakpoint     byte = 0x41
	StatusStoppedWatchpoint     byte = 0x42
	StatusStoppedMemFault       byte = 0x43
	StatusStoppedByProgram      byte = 0x44
	StatusRunning               byte = 0x80
	StatusRunningSWITransparent byte = 0x81
	StatusStepping              byte = 0x82
)

// Run-flag bits accepted by Start (spec.md §4.8).
const (
	RunFlagBreakImmediately   byte = 1 << 0
	RunFlagTransparentCall    byte = 1 << 1
	RunFlagTransparentSWI     byte = 1 << 2
	RunFlagAbortOnMemFault    byte = 1 << 3
	RunFlagBreakpointsEnabled byte = 1 << 4
	RunFlagWatchpointsEnabled byte = 1 << 5
)

// transparencyFrame records the return point a run-through-call or
// run-through-SWI substate is waiting to reach.
type transparencyFrame struct {
	pc          uint32
	sp          uint32
	mode        Mode
	savedStatus byte
}

// VM composes the six always-on components (spec.md's component table C1-C6)
// plus the scheduler state that turns single steps into the run/stop/step
// state machine of §4.8. The byte-protocol translation itself lives in the
// monitor package, which drives this type through Start/Stop/Continue/Tick.
type VM struct {
	// mu guards the entire aggregate below, per spec.md §5: the monitor
	// takes it across a full command handler, Tick takes it for one step.
	// Single-threaded today, but the lock makes the aggregate safe if the
	// monitor and run loop are ever split across goroutines.
	mu sync.Mutex

	CPU         *CPU
	Memory      *Memory
	Breakpoints *TrapTable
	Watchpoints *TrapTable
	Terminals   *TerminalBank
	History     *FetchHistory

	Status          byte
	RunFlags        byte
	StepsToGo       uint32
	StepsSinceReset uint32

	stepping    bool
	transparent bool
	transFrame  transparencyFrame

	swiCursorPC uint32
	swiCursor   uint32

	lastWatchpoint bool
	lastOOB        bool
}

// Options sizes the VM's trap tables and memory at construction time,
// mirroring the tunables the config package loads (MEM_BYTES, NB, NW, tube
// address). Left zero, each field falls back to its spec.md §3 default.
type Options struct {
	MemBytes       uint32
	NumBreakpoints int
	NumWatchpoints int
	TubeAddress    uint32
}

// NewVM constructs a VM with default-sized components, wired the way
// spec.md §3 describes: memory's tube write is routed to terminal 0's
// out-buffer (the tube address itself is 0/disabled until configured).
func NewVM() *VM { return NewVMWithOptions(Options{}) }

// NewVMWithOptions is NewVM with every size overridable, used by main when
// a config file sets non-default table sizes or a tube address.
func NewVMWithOptions(opts Options) *VM {
	if opts.MemBytes == 0 {
		opts.MemBytes = DefaultMemBytes
	}
	if opts.NumBreakpoints == 0 {
		opts.NumBreakpoints = NB
	}
	if opts.NumWatchpoints == 0 {
		opts.NumWatchpoints = NW
	}

	vm := &VM{
		CPU:         NewCPU(),
		Memory:      NewMemory(opts.MemBytes),
		Breakpoints: NewTrapTable(opts.NumBreakpoints),
		Watchpoints: NewTrapTable(opts.NumWatchpoints),
		Terminals:   NewTerminalBank(),
		History:     &FetchHistory{},
	}
	vm.Memory.TubeAddress = opts.TubeAddress
	vm.Memory.AttachTube(&vm.Terminals.Device(0).Out)
	vm.swiCursorPC = swiNoCursor
	vm.Status = StatusReset
	return vm
}

// Reset restores every component to its power-on state and clears all
// scheduler state, matching the monitor's RESET opcode (spec.md §6.3).
func (vm *VM) Reset() {
	vm.CPU.Reset()
	vm.Memory.Reset()
	vm.Breakpoints.Reset()
	vm.Watchpoints.Reset()
	vm.Terminals.Reset()
	vm.History.Reset()

	vm.Status = StatusReset
	vm.RunFlags = 0
	vm.StepsToGo = 0
	vm.StepsSinceReset = 0
	vm.stepping = false
	vm.transparent = false
	vm.transFrame = transparencyFrame{}
	vm.swiCursorPC = swiNoCursor
	vm.swiCursor = 0
	vm.lastWatchpoint = false
	vm.lastOOB = false
}

// Lock and Unlock expose the aggregate mutex to the monitor package, which
// must hold it across a full command handler (spec.md §5).
func (vm *VM) Lock()   { vm.mu.Lock() }
func (vm *VM) Unlock() { vm.mu.Unlock() }

func (vm *VM) outOfBounds(addr uint32, size int) bool {
	return uint64(addr)+uint64(size) > uint64(vm.Memory.Size())
}

// loadMem is the single entry point every load executor uses: it performs
// the sized/signed read, flags an out-of-bounds access, and evaluates the
// watchpoint table against the access (spec.md §4.1, §4.5). Per the
// recorded Open Question disposition, watchpoints are evaluated after the
// memory effect for both loads and stores.
func (vm *VM) loadMem(addr uint32, size int, signed bool) uint32 {
	if vm.outOfBounds(addr, size) {
		vm.lastOOB = true
	}
	raw := vm.Memory.Read(addr, size, false)
	value := raw
	if signed {
		value = vm.Memory.Read(addr, size, true)
	}
	if _, ok := vm.Watchpoints.CheckAccess(addr, raw, size, false); ok {
		vm.lastWatchpoint = true
	}
	return value
}

// storeMem is the store counterpart of loadMem.
func (vm *VM) storeMem(addr uint32, value uint32, size int) {
	if vm.outOfBounds(addr, size) {
		vm.lastOOB = true
	}
	vm.Memory.Write(addr, value, size)
	if _, ok := vm.Watchpoints.CheckAccess(addr, value, size, true); ok {
		vm.lastWatchpoint = true
	}
}

// Decode classifies a wide-ISA opcode (spec.md §4.3). The unconditional BLX
// (immediate) escape hatch and the architectural breakpoint/SWI patterns
// are checked ahead of the condition-independent bits27-26 classification
// since they occupy the "always execute" condition-nibble space (0xF) or a
// fixed pattern that would otherwise be read as ordinary data processing.
func (vm *VM) Decode(opcode uint32) *Instruction {
	inst := &Instruction{Opcode: opcode}
	inst.Condition = ConditionCode((opcode >> ConditionShift) & Mask4Bit)
	inst.SetFlags = (opcode>>SBitShift)&Mask1Bit == 1

	if opcode&0xFE000000 == 0xFA000000 {
		inst.Type = InstBranchLinkExchangeImm
		inst.Condition = CondAL
		return inst
	}

	if opcode&ArchBreakpointMask == ArchBreakpointPattern {
		inst.Type = InstBreakpoint
		return inst
	}

	if opcode&SWIDetectMask == SWIPattern {
		inst.Type = InstSWI
		return inst
	}

	switch (opcode >> Bits27_26Shift) & Mask2Bit {
	case 0: // data processing / multiply / PSR transfer / BX / BLX(reg) / halfword
		if opcode&BXPatternMask == BXEncodingBase {
			inst.Type = InstBranchExchange
			return inst
		}
		if opcode&BXPatternMask == BLXRegEncodingBase {
			inst.Type = InstBranchExchange
			inst.Link = true
			return inst
		}
		if opcode&LongMultiplyMask == LongMultiplyPattern || opcode&MultiplyMask == MultiplyPattern {
			inst.Type = InstMultiply
			return inst
		}
		if opcode&MRSMask == MRSPattern || opcode&MSRRegMask == MSRRegPattern || opcode&MSRImmMask == MSRImmPattern {
			inst.Type = InstPSRTransfer
			return inst
		}
		if (opcode>>IBitShift)&Mask1Bit == 0 && (opcode>>Bit7Pos)&Mask1Bit == 1 && (opcode>>Bit4Pos)&Mask1Bit == 1 {
			inst.Type = InstLoadStore // halfword/signed transfer
			return inst
		}
		inst.Type = InstDataProcessing
		return inst
	case 1: // single data transfer: LDR/STR word/byte
		inst.Type = InstLoadStore
		return inst
	case 2: // LDM/STM or branch, selected by bit 25
		if (opcode>>Bits27_25Shift)&Mask1Bit == 0 {
			inst.Type = InstLoadStoreMultiple
		} else {
			inst.Type = InstBranch
		}
		return inst
	default: // coprocessor space; SWI already handled above
		inst.Type = InstUndefined
		return inst
	}
}

// Execute dispatches a decoded instruction, honoring its condition code
// (spec.md §4.3) except for the unconditional BLX(immediate) escape.
func (vm *VM) Execute(inst *Instruction) error {
	if inst.Type != InstBranchLinkExchangeImm && !vm.CPU.CPSR.EvaluateCondition(inst.Condition) {
		vm.CPU.IncrementPC()
		return nil
	}

	switch inst.Type {
	case InstDataProcessing:
		return ExecuteDataProcessing(vm, inst)
	case InstMultiply:
		return ExecuteMultiply(vm, inst)
	case InstLoadStore:
		return ExecuteLoadStore(vm, inst)
	case InstLoadStoreMultiple:
		return ExecuteLoadStoreMultiple(vm, inst)
	case InstBranch:
		return ExecuteBranch(vm, inst)
	case InstBranchExchange:
		return ExecuteBranchExchange(vm, inst, inst.Link)
	case InstBranchLinkExchangeImm:
		return ExecuteBranchLinkExchangeImmediate(vm, inst)
	case InstSWI:
		return ExecuteSWI(vm, inst)
	case InstPSRTransfer:
		return ExecutePSRTransfer(vm, inst)
	case InstBreakpoint:
		vm.CPU.EnterException(ModeAbort, inst.Address, VectorArchBreakpoint)
		return nil
	default: // InstUndefined, InstUnknown
		vm.CPU.EnterException(ModeUndefined, inst.Address, VectorUndefined)
		return nil
	}
}

// Step fetches, decodes, and executes exactly one instruction in whichever
// ISA CPSR.T currently selects, recording fetch history and evaluating the
// breakpoint table first (spec.md §4.4, §4.5). The returned StepOutcome
// tells the scheduler (Tick) what, if anything, interrupted normal
// execution; lastWatchpoint/lastOOB are set by loadMem/storeMem during
// Execute/ExecuteNarrow and consumed here.
func (vm *VM) Step(breakpointsEnabled bool) (StepOutcome, error) {
	opPC := vm.CPU.PC
	vm.History.Record(opPC)
	vm.lastWatchpoint = false
	vm.lastOOB = false

	narrow := vm.CPU.CPSR.T
	var op32 uint32
	var op16 uint16
	if narrow {
		op16 = vm.Memory.ReadHalfword(opPC)
		op32 = uint32(op16)
	} else {
		op32 = vm.Memory.ReadWord(opPC)
	}

	if breakpointsEnabled {
		if _, ok := vm.Breakpoints.CheckFetch(opPC, op32); ok {
			return OutcomeBreakpoint, nil
		}
	}

	var err error
	if narrow {
		err = ExecuteNarrow(vm, opPC, op16)
	} else {
		inst := vm.Decode(op32)
		inst.Address = opPC
		err = vm.Execute(inst)
	}

	switch {
	case vm.lastOOB:
		return OutcomeMemFault, err
	case vm.lastWatchpoint:
		return OutcomeWatchpoint, err
	default:
		return OutcomeNormal, err
	}
}

// Start begins a run (steps == 0) or a bounded step count (steps > 0),
// recording the run flags for Tick's scheduler (spec.md §4.8). If
// RunFlagBreakImmediately and RunFlagBreakpointsEnabled are both set and the
// current PC already matches an armed breakpoint, the run stops before
// executing anything.
func (vm *VM) Start(flags byte, steps uint32) {
	vm.RunFlags = flags
	vm.stepping = steps != 0
	if vm.stepping {
		vm.StepsToGo = steps
		vm.Status = StatusStepping
	} else {
		vm.Status = StatusRunning
	}

	if flags&RunFlagBreakImmediately != 0 && flags&RunFlagBreakpointsEnabled != 0 {
		pc := vm.CPU.PC
		var op uint32
		if vm.CPU.CPSR.T {
			op = uint32(vm.Memory.ReadHalfword(pc))
		} else {
			op = vm.Memory.ReadWord(pc)
		}
		if _, ok := vm.Breakpoints.CheckFetch(pc, op); ok {
			vm.Status = StatusStoppedBreakpoint
		}
	}
}

// Stop transitions a running VM to the plain stopped state. Idempotent:
// calling it while already stopped has no effect.
func (vm *VM) Stop() {
	if vm.Status&0x80 != 0 {
		vm.Status = StatusStopped
	}
}

// Continue resumes a stopped VM in whichever running mode (free-run or
// bounded stepping) it was in before it stopped.
func (vm *VM) Continue() {
	if vm.Status&0x80 != 0 || vm.Status == StatusReset {
		return
	}
	if vm.stepping {
		vm.Status = StatusStepping
	} else {
		vm.Status = StatusRunning
	}
}

// Tick advances the scheduler by exactly one instruction if the VM is in a
// running class of status, implementing the run-through-call and
// run-through-SWI transparency substates of spec.md §4.8: a BL (or the
// narrow BL/BLX suffix) or an SWI about to execute, with the matching
// transparency flag set, suspends step-counting until control returns to
// the recorded frame (same PC, SP, and mode). The monitor package calls
// Tick repeatedly while the VM's status indicates it should run.
func (vm *VM) Tick() {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.Status&0x80 == 0 {
		return
	}

	opPC := vm.CPU.PC
	enteringTransparent := false

	if !vm.transparent {
		if vm.CPU.CPSR.T {
			op16 := vm.Memory.ReadHalfword(opPC)
			top5 := (op16 >> 11) & 0x1F
			isCall := top5 == 0x1F || top5 == 0x1D
			isSWI := uint8(op16>>8) == 0xDF
			if isCall && vm.RunFlags&RunFlagTransparentCall != 0 {
				enteringTransparent = true
			}
			if isSWI && vm.RunFlags&RunFlagTransparentSWI != 0 {
				enteringTransparent = true
			}
		} else {
			op32 := vm.Memory.ReadWord(opPC)
			inst := vm.Decode(op32)
			if vm.CPU.CPSR.EvaluateCondition(inst.Condition) {
				isCall := inst.Type == InstBranch && (op32>>BranchLinkShift)&Mask1Bit == 1
				isSWI := inst.Type == InstSWI
				if isCall && vm.RunFlags&RunFlagTransparentCall != 0 {
					enteringTransparent = true
				}
				if isSWI && vm.RunFlags&RunFlagTransparentSWI != 0 {
					enteringTransparent = true
				}
			}
		}
	}

	if enteringTransparent {
		retOffset := uint32(4)
		if vm.CPU.CPSR.T {
			retOffset = 2
		}
		vm.transFrame = transparencyFrame{
			pc:          opPC + retOffset,
			sp:          vm.CPU.GetSP(),
			mode:        vm.CPU.CPSR.Mode,
			savedStatus: vm.Status,
		}
		vm.transparent = true
		vm.Status = StatusRunningSWITransparent
	}

	wasTransparentBefore := vm.transparent

	breakpointsEnabled := vm.RunFlags&RunFlagBreakpointsEnabled != 0
	outcome, _ := vm.Step(breakpointsEnabled)

	switch outcome {
	case OutcomeBreakpoint:
		vm.Status = StatusStoppedBreakpoint
		return
	case OutcomeWatchpoint:
		if vm.RunFlags&RunFlagWatchpointsEnabled != 0 {
			vm.Status = StatusStoppedWatchpoint
			return
		}
	case OutcomeMemFault:
		if vm.RunFlags&RunFlagAbortOnMemFault != 0 {
			vm.Status = StatusStoppedMemFault
			return
		}
	}

	if vm.Status == StatusStoppedByProgram {
		return
	}

	// A run-through-call/SWI sequence counts as exactly one step from the
	// caller's perspective (spec.md §4.8, §8 scenario 6): steps_since_reset
	// and steps_to_go only advance once the transparent frame resolves, not
	// once per instruction retired inside it.
	if vm.transparent {
		if vm.CPU.PC == vm.transFrame.pc && vm.CPU.GetSP() == vm.transFrame.sp && vm.CPU.CPSR.Mode == vm.transFrame.mode {
			vm.transparent = false
			vm.Status = vm.transFrame.savedStatus
			vm.StepsSinceReset++
		} else {
			return
		}
	} else if !wasTransparentBefore {
		vm.StepsSinceReset++
	}

	if vm.Status == StatusStepping {
		if vm.StepsToGo > 0 {
			vm.StepsToGo--
		}
		if vm.StepsToGo == 0 {
			vm.Status = StatusStopped
		}
	}
}
