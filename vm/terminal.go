package vm

// RingSize is RING from spec.md §3: the byte capacity of each terminal
// buffer.
const RingSize = 64

// MaxTerminals is the number of logical devices the terminal channel
// exposes (spec.md §3: "up to 16 logical devices").
const MaxTerminals = 16

// RingBuffer is the bounded single-producer/single-consumer byte buffer of
// spec.md §3/§4.6/§9: a fixed array with modular head/tail indices, no
// locking required at single-threaded scope.
type RingBuffer struct {
	data       [RingSize]byte
	head, tail int
}

// Count returns the number of bytes currently buffered.
func (r *RingBuffer) Count() int {
	return (r.head - r.tail + RingSize) % RingSize
}

// Full reports whether the buffer cannot accept another byte.
func (r *RingBuffer) Full() bool {
	return (r.head+1)%RingSize == r.tail
}

// Empty reports whether the buffer has nothing to read.
func (r *RingBuffer) Empty() bool {
	return r.head == r.tail
}

// Push appends a byte, returning false if the buffer was full.
func (r *RingBuffer) Push(b byte) bool {
	if r.Full() {
		return false
	}
	r.data[r.head] = b
	r.head = (r.head + 1) % RingSize
	return true
}

// Pop removes and returns the oldest byte, returning false if empty.
func (r *RingBuffer) Pop() (byte, bool) {
	if r.Empty() {
		return 0, false
	}
	b := r.data[r.tail]
	r.tail = (r.tail + 1) % RingSize
	return b, true
}

// Reset empties the buffer without clearing its backing array.
func (r *RingBuffer) Reset() {
	r.head = 0
	r.tail = 0
}

// Terminal is a logical character device: a host-to-emulator "in" buffer and
// an emulator-to-host "out" buffer (spec.md §3/§4.6).
type Terminal struct {
	In  RingBuffer
	Out RingBuffer
}

// TerminalBank holds every logical device the emulator exposes. Device 0
// is always present and is the console SWI 0/1/3/4 address.
type TerminalBank struct {
	devices [MaxTerminals]Terminal
}

// NewTerminalBank constructs an empty terminal bank.
func NewTerminalBank() *TerminalBank {
	return &TerminalBank{}
}

// Device returns the terminal for the given id, or nil if out of range.
func (t *TerminalBank) Device(id int) *Terminal {
	if id < 0 || id >= MaxTerminals {
		return nil
	}
	return &t.devices[id]
}

// Reset empties every device's buffers.
func (t *TerminalBank) Reset() {
	for i := range t.devices {
		t.devices[i].In.Reset()
		t.devices[i].Out.Reset()
	}
}
