package monitor

import (
	"bufio"
	"errors"
	"io"

	"github.com/lookbusy1344/arm-monitor/vm"
)

// Server drives one vm.VM through the wire protocol on a pair of streams.
// Grounded on jimulator.c's comm() dispatch loop: read one opcode byte,
// decode its fixed-or-computed payload, mutate the emulator, reply.
type Server struct {
	vm *vm.VM
	br *bufio.Reader
	w  io.Writer
}

// NewServer wraps r/w as the monitor's stdin/stdout pipes (spec.md §6.5:
// the core has no CLI flags, only stdio).
func NewServer(v *vm.VM, r io.Reader, w io.Writer) *Server {
	return &Server{vm: v, br: bufio.NewReader(r), w: w}
}

// Run services opcodes until the input stream closes, per spec.md §4.8's
// per-tick behavior: while the VM is in a running class of status, poll the
// opcode stream non-blocking and advance one instruction per iteration;
// otherwise block waiting for the next command. A background goroutine
// does the actual blocking read so the main loop can select on it
// non-blockingly while running; the ack channel keeps the two goroutines
// from touching br concurrently (the reader goroutine only ever reads the
// one opcode byte per round, handing payload reads to the handler).
func (s *Server) Run() error {
	opcodes := make(chan byte)
	acks := make(chan struct{})
	readErr := make(chan error, 1)

	go func() {
		for {
			b, err := s.br.ReadByte()
			if err != nil {
				readErr <- err
				return
			}
			opcodes <- b
			<-acks
		}
	}()

	for {
		s.vm.Lock()
		running := s.vm.Status&0x80 != 0
		s.vm.Unlock()

		if running {
			select {
			case c := <-opcodes:
				err := s.handle(c)
				acks <- struct{}{}
				if err != nil {
					return translateEOF(err)
				}
			case err := <-readErr:
				return translateEOF(err)
			default:
			}
			s.vm.Tick()
			continue
		}

		select {
		case c := <-opcodes:
			err := s.handle(c)
			acks <- struct{}{}
			if err != nil {
				return translateEOF(err)
			}
		case err := <-readErr:
			return translateEOF(err)
		}
	}
}

// translateEOF reports graceful shutdown (spec.md §6.6: "exit status 0 on
// graceful shutdown (parent closes the command pipe)") as a nil error.
func translateEOF(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil
	}
	return err
}

// handle decodes and services exactly one opcode, holding the VM's
// aggregate lock across the whole command per spec.md §5.
func (s *Server) handle(c byte) error {
	s.vm.Lock()
	defer s.vm.Unlock()

	switch {
	case c == opNOP:
		return nil
	case c == opPING:
		_, err := s.w.Write([]byte("OK00"))
		return err
	case c == opWhoami:
		return s.handleWhoami()
	case c == opReset:
		s.vm.Reset()
		return nil
	case c == opFIFOWrite:
		return s.handleFIFOWrite()
	case c == opFIFORead:
		return s.handleFIFORead()
	case c == opStatus:
		return s.handleStatus()
	case c == opStop || c == opPause:
		s.vm.Stop()
		return nil
	case c == opContinue:
		s.vm.Continue()
		return nil
	case c == opSetRTF:
		b, err := readU8(s.br)
		if err != nil {
			return err
		}
		s.vm.RunFlags = b
		return nil
	case c == opGetRTF:
		return writeU8(s.w, s.vm.RunFlags)
	case c == opBPWrite:
		return s.handleTrapWrite(s.vm.Breakpoints)
	case c == opBPRead:
		return s.handleTrapRead(s.vm.Breakpoints)
	case c == opBPSet:
		return s.handleTrapSetMasks(s.vm.Breakpoints)
	case c == opBPGet:
		return s.handleTrapGetMasks(s.vm.Breakpoints)
	case c == opWPWrite:
		return s.handleTrapWrite(s.vm.Watchpoints)
	case c == opWPRead:
		return s.handleTrapRead(s.vm.Watchpoints)
	case c == opWPSet:
		return s.handleTrapSetMasks(s.vm.Watchpoints)
	case c == opWPGet:
		return s.handleTrapGetMasks(s.vm.Watchpoints)
	case c&memFamilyMask == memFamilyBase && c&memClassMask == memClassMem:
		return s.handleMemTransfer(c)
	case c&memFamilyMask == memFamilyBase && c&memClassMask == memClassReg:
		return s.handleRegTransfer(c)
	case c&startFamilyMask == startFamilyBase:
		return s.handleStart(c)
	default:
		return nil // reserved/no-op (11xxxxxx) or unrecognized: ignored
	}
}

func (s *Server) handleWhoami() error {
	// Descriptor layout (spec.md §4.7/§6.2): processor-type half, feature
	// count, feature records, memory-segment count, segment records. One
	// feature (terminal device 0) and one memory segment (all of MEM_BYTES
	// from address 0) describe this core.
	var body []byte
	appendU16 := func(v uint16) { body = append(body, byte(v), byte(v>>8)) }
	appendU32 := func(v uint32) {
		body = append(body, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}

	appendU16(processorType)
	body = append(body, 1)                 // feature count
	body = append(body, featureTerminal, 0) // type, device id
	body = append(body, 1)                 // memory segment count
	appendU32(0)
	appendU32(s.vm.Memory.Size())

	if len(body) > 0xFF {
		body = body[:0xFF] // descriptor length is a single byte
	}
	if err := writeU8(s.w, byte(len(body))); err != nil {
		return err
	}
	_, err := s.w.Write(body)
	return err
}

const (
	processorType  = 0x0001
	featureTerminal = 0x01
)

func (s *Server) handleStatus() error {
	if err := writeU8(s.w, s.vm.Status); err != nil {
		return err
	}
	if err := writeU32(s.w, s.vm.StepsToGo); err != nil {
		return err
	}
	return writeU32(s.w, s.vm.StepsSinceReset)
}

func (s *Server) handleFIFOWrite() error {
	dev, err := readU8(s.br)
	if err != nil {
		return err
	}
	n, err := readU8(s.br)
	if err != nil {
		return err
	}
	data, err := readN(s.br, int(n))
	if err != nil {
		return err
	}
	term := s.vm.Terminals.Device(int(dev))
	var pushed byte
	if term != nil {
		for _, b := range data {
			if !term.In.Push(b) {
				break
			}
			pushed++
		}
	}
	return writeU8(s.w, pushed)
}

func (s *Server) handleFIFORead() error {
	dev, err := readU8(s.br)
	if err != nil {
		return err
	}
	max, err := readU8(s.br)
	if err != nil {
		return err
	}
	term := s.vm.Terminals.Device(int(dev))
	var data []byte
	if term != nil {
		for len(data) < int(max) {
			b, ok := term.Out.Pop()
			if !ok {
				break
			}
			data = append(data, b)
		}
	}
	if err := writeU8(s.w, byte(len(data))); err != nil {
		return err
	}
	_, err = s.w.Write(data)
	return err
}

// handleTrapWrite implements BP_WRITE/WP_WRITE: slot(1) + cond(1) + size(1)
// + addrA(4) + addrB(4) + dataA(8) + dataB(8), per spec.md §6.2. addrA/addrB
// arrive as 32-bit wire values (the 32-bit address space never needs the
// full 64-bit range/mask width spec.md §3 declares for the in-memory slot);
// dataA/dataB arrive as the full 64 bits.
func (s *Server) handleTrapWrite(t *vm.TrapTable) error {
	slot, err := readU8(s.br)
	if err != nil {
		return err
	}
	cond, err := readU8(s.br)
	if err != nil {
		return err
	}
	size, err := readU8(s.br)
	if err != nil {
		return err
	}
	addrA, err := readU32(s.br)
	if err != nil {
		return err
	}
	addrB, err := readU32(s.br)
	if err != nil {
		return err
	}
	dataA, err := readU64(s.br)
	if err != nil {
		return err
	}
	dataB, err := readU64(s.br)
	if err != nil {
		return err
	}
	t.Set(int(slot), vm.TrapSlot{
		Cond:  cond,
		Size:  size,
		AddrA: uint64(addrA),
		AddrB: uint64(addrB),
		DataA: dataA,
		DataB: dataB,
	})
	return nil
}

func (s *Server) handleTrapRead(t *vm.TrapTable) error {
	slot, err := readU8(s.br)
	if err != nil {
		return err
	}
	ts, _ := t.Get(int(slot))
	if err := writeU8(s.w, ts.Cond); err != nil {
		return err
	}
	if err := writeU8(s.w, ts.Size); err != nil {
		return err
	}
	if err := writeU32(s.w, uint32(ts.AddrA)); err != nil {
		return err
	}
	if err := writeU32(s.w, uint32(ts.AddrB)); err != nil {
		return err
	}
	if err := writeU64(s.w, ts.DataA); err != nil {
		return err
	}
	return writeU64(s.w, ts.DataB)
}

func (s *Server) handleTrapSetMasks(t *vm.TrapTable) error {
	used, err := readU32(s.br)
	if err != nil {
		return err
	}
	active, err := readU32(s.br)
	if err != nil {
		return err
	}
	t.SetMasks(used, active)
	return nil
}

func (s *Server) handleTrapGetMasks(t *vm.TrapTable) error {
	used, active := t.Masks()
	if err := writeU32(s.w, used); err != nil {
		return err
	}
	return writeU32(s.w, active)
}

// handleMemTransfer implements SET_MEM (0x40-0x47) / GET_MEM (0x48-0x4F):
// address(4) + count(2), then count*elementSize bytes of raw data, copied
// byte-for-byte (spec.md §4.7). elementSize = 1 << (opcode & 0x07).
func (s *Server) handleMemTransfer(c byte) error {
	addr, err := readU32(s.br)
	if err != nil {
		return err
	}
	count, err := readU16(s.br)
	if err != nil {
		return err
	}
	elemSize := 1 << (c & memSizeBits)
	total := uint32(count) * uint32(elemSize)

	if c&memDirGet != 0 {
		_, err := s.w.Write(s.vm.Memory.GetBytes(addr, total))
		return err
	}
	data, err := readN(s.br, int(total))
	if err != nil {
		return err
	}
	s.vm.Memory.LoadBytes(addr, data)
	return nil
}

// handleRegTransfer implements the register-bank form of SET_MEM/GET_MEM
// (0x50-0x5F) — see DESIGN.md: the opcode's class bits select register vs
// memory (grounded on jimulator.c's monitor_memory()), and the address's
// top 3 bits (of its low byte) select the bank while the low 5 bits select
// the starting register, per spec.md §4.7's literal prefix list and
// jimulator.c's addr&0xE0/addr&0x1F split.
func (s *Server) handleRegTransfer(c byte) error {
	addr, err := readU32(s.br)
	if err != nil {
		return err
	}
	count, err := readU16(s.br)
	if err != nil {
		return err
	}

	bank := registerBankFromSelector((addr >> 5) & 0x7)
	regNum := int(addr & 0x1F)
	get := c&memDirGet != 0

	for i := 0; i < int(count); i++ {
		n := regNum + i
		if n > 17 {
			if get {
				if err := writeU32(s.w, 0); err != nil {
					return err
				}
			} else if _, err := readU32(s.br); err != nil {
				return err
			}
			continue
		}
		if get {
			if err := writeU32(s.w, s.vm.CPU.Read(n, bank)); err != nil {
				return err
			}
		} else {
			v, err := readU32(s.br)
			if err != nil {
				return err
			}
			s.vm.CPU.Write(n, v, bank)
		}
	}
	return nil
}

func registerBankFromSelector(sel uint32) vm.RegisterBank {
	switch sel {
	case 1:
		return vm.RegisterBankUser
	case 2:
		return vm.RegisterBankSupervisor
	case 3:
		return vm.RegisterBankAbort
	case 4:
		return vm.RegisterBankUndefined
	case 5:
		return vm.RegisterBankIRQ
	case 6:
		return vm.RegisterBankFIQ
	default: // 0 and the unused 7 both fall back to current
		return vm.RegisterBankCurrent
	}
}

// handleStart implements START (0x80-0xBF): the opcode's low 6 bits are run
// flags, followed by a 32-bit step count (spec.md §4.7/§4.8).
func (s *Server) handleStart(c byte) error {
	steps, err := readU32(s.br)
	if err != nil {
		return err
	}
	s.vm.Start(c&startFlagsMask, steps)
	return nil
}
