package monitor

import (
	"bufio"
	"encoding/binary"
	"io"
)

// readN reads exactly n bytes from br, per spec.md §6.2 ("all multi-byte
// integers little-endian"; framing is opcode-driven, so a short read here
// always means the peer hung up mid-command).
func readN(br *bufio.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readU8(br *bufio.Reader) (byte, error) {
	return br.ReadByte()
}

func readU16(br *bufio.Reader) (uint16, error) {
	b, err := readN(br, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func readU32(br *bufio.Reader) (uint32, error) {
	b, err := readN(br, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func readU64(br *bufio.Reader) (uint64, error) {
	b, err := readN(br, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func writeU8(w io.Writer, v byte) error {
	_, err := w.Write([]byte{v})
	return err
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}
