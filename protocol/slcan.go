package protocol

import (
	"errors"

	"go.einride.tech/can"
)

// SLCAN (Lawicel) ASCII framing used by USB-serial CAN adapters.
const (
	slcanCR   = '\r'
	slcanBell = 0x07

	SLCANMaxLine = 1 + 8 + 1 + 16 + 1
)

var ErrBadSLCAN = errors.New("malformed slcan line")

var slcanBitrates = map[int]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

// SLCANBitrate returns the "Sx" setup command for bitrate.
func SLCANBitrate(bitrate int) ([]byte, bool) {
	c, ok := slcanBitrates[bitrate]
	if !ok {
		return nil, false
	}
	return []byte{'S', c, slcanCR}, true
}

// SLCAN adapter control commands
var (
	SLCANOpen  = []byte("O\r")
	SLCANClose = []byte("C\r")
)

const hexDigits = "0123456789ABCDEF"

// AppendSLCAN appends the ASCII form of f, including the trailing CR.
func AppendSLCAN(dst []byte, f can.Frame) []byte {
	kind := byte('t')
	idDigits := 3
	if f.IsExtended {
		kind = 'T'
		idDigits = 8
	}
	if f.IsRemote {
		kind -= 't' - 'r'
	}
	dst = append(dst, kind)
	for i := idDigits - 1; i >= 0; i-- {
		dst = append(dst, hexDigits[(f.ID>>(4*uint(i)))&0xF])
	}
	length := f.Length
	if length > 8 {
		length = 8
	}
	dst = append(dst, hexDigits[length])
	if !f.IsRemote {
		for i := uint8(0); i < length; i++ {
			dst = append(dst, hexDigits[f.Data[i]>>4], hexDigits[f.Data[i]&0xF])
		}
	}
	return append(dst, slcanCR)
}

// ParseSLCAN decodes one line without its terminator.
func ParseSLCAN(line []byte) (can.Frame, error) {
	var f can.Frame
	if len(line) < 1 {
		return f, ErrBadSLCAN
	}
	idDigits := 3
	switch line[0] {
	case 't':
	case 'r':
		f.IsRemote = true
	case 'T':
		f.IsExtended = true
		idDigits = 8
	case 'R':
		f.IsExtended = true
		f.IsRemote = true
		idDigits = 8
	default:
		return f, ErrBadSLCAN
	}
	if len(line) < 1+idDigits+1 {
		return f, ErrBadSLCAN
	}
	for _, c := range line[1 : 1+idDigits] {
		n, ok := nibble(c)
		if !ok {
			return f, ErrBadSLCAN
		}
		f.ID = f.ID<<4 | uint32(n)
	}
	dlc, ok := nibble(line[1+idDigits])
	if !ok || dlc > 8 {
		return f, ErrBadSLCAN
	}
	f.Length = dlc
	if f.IsRemote {
		return f, nil
	}
	data := line[2+idDigits:]
	if len(data) < 2*int(dlc) {
		return f, ErrBadSLCAN
	}
	for i := 0; i < int(dlc); i++ {
		hi, ok1 := nibble(data[2*i])
		lo, ok2 := nibble(data[2*i+1])
		if !ok1 || !ok2 {
			return f, ErrBadSLCAN
		}
		f.Data[i] = hi<<4 | lo
	}
	return f, nil
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// SLCANDecoder splits an SLCAN byte stream into frames.
type SLCANDecoder struct {
	handler func(can.Frame)
	errors  uint32
	naks    uint32
}

// NewSLCANDecoder creates a decoder that calls handler for every received frame.
func NewSLCANDecoder(handler func(can.Frame)) *SLCANDecoder {
	return &SLCANDecoder{handler: handler}
}

// Receive consumes every complete line in input. A partial trailing line is
// left in the buffer for the next call.
func (d *SLCANDecoder) Receive(input *LineBuffer) {
	for {
		line, term, ok := input.Next()
		if !ok {
			return
		}
		if term == slcanBell {
			d.naks++
			continue
		}
		if len(line) == 0 || line[0] == 'z' || line[0] == 'Z' {
			// command / transmit acknowledgements
			continue
		}
		f, err := ParseSLCAN(line)
		if err != nil {
			d.errors++
			continue
		}
		if d.handler != nil {
			d.handler(f)
		}
	}
}

// Errors returns the number of unparseable lines seen.
func (d *SLCANDecoder) Errors() uint32 { return d.errors }

// Naks returns the number of BEL (command rejected) responses seen.
func (d *SLCANDecoder) Naks() uint32 { return d.naks }
