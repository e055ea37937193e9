// Package cm17a encodes and transmits X10 commands through a CM17A
// "Firecracker" transmitter driven on two digital lines (DTR and RTS).
//
// A command is sent as 40 bits, most significant first: a fixed 16-bit
// header, a 16-bit data word carrying house code, unit and function, and an
// 8-bit footer. Address bits are the same for ON and OFF of one unit; only
// the function bit differs.
package cm17a

import (
	"errors"
	"fmt"
)

// Action is the X10 function sent to a unit.
type Action int

const (
	On Action = iota
	Off
)

func (a Action) String() string {
	switch a {
	case On:
		return "ON"
	case Off:
		return "OFF"
	}
	return "UNKNOWN"
}

// ParseAction parses "ON" or "OFF" (any case).
func ParseAction(s string) (Action, error) {
	switch s {
	case "ON", "on", "On":
		return On, nil
	case "OFF", "off", "Off":
		return Off, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Errors returned for commands that cannot be encoded.
var (
	ErrInvalidHouse  = errors.New("cm17a: house code must be A-P")
	ErrInvalidUnit   = errors.New("cm17a: unit must be 1-16")
	ErrInvalidAction = errors.New("cm17a: action must be ON or OFF")
	ErrInvalidRepeat = errors.New("cm17a: repeat must be at least 1")
)

// Command is one X10 command frame and how many times to send it.
type Command struct {
	House  byte // 'A'..'P'
	Unit   int  // 1..16
	Action Action
	Repeat int
}

func (c Command) String() string {
	return fmt.Sprintf("%c%d %s x%d", c.House, c.Unit, c.Action, c.Repeat)
}

// Validate checks every field of the command.
func (c Command) Validate() error {
	if _, err := DataWord(c.House, c.Unit, c.Action); err != nil {
		return err
	}
	if c.Repeat < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidRepeat, c.Repeat)
	}
	return nil
}

// Frame layout.
const (
	Header    uint16 = 0xD5AA
	Footer    byte   = 0xAD
	FrameBits        = 40
)

const (
	unitHighBit byte = 0x04 // in the house byte, units 9-16
	offBit      byte = 0x20 // in the unit byte
)

// houseNibble maps A..P to the CM17A house code nibble.
var houseNibble = [16]byte{
	0x6, 0x7, 0x4, 0x5, 0x8, 0x9, 0xA, 0xB,
	0xE, 0xF, 0xC, 0xD, 0x0, 0x1, 0x2, 0x3,
}

// unitBits maps (unit-1)%8 to the unit byte.
var unitBits = [8]byte{0x00, 0x10, 0x08, 0x18, 0x40, 0x50, 0x48, 0x58}

// NormalizeHouse upper-cases a house code letter.
func NormalizeHouse(house byte) byte {
	if house >= 'a' && house <= 'p' {
		return house - 'a' + 'A'
	}
	return house
}

// DataWord returns the 16-bit data word for a house code, unit and action.
// The high byte is the house byte and the low byte the unit/function byte.
func DataWord(house byte, unit int, action Action) (uint16, error) {
	house = NormalizeHouse(house)
	if house < 'A' || house > 'P' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHouse, house)
	}
	if unit < 1 || unit > 16 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidUnit, unit)
	}
	if action != On && action != Off {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAction, int(action))
	}

	hi := houseNibble[house-'A'] << 4
	if unit > 8 {
		hi |= unitHighBit
	}
	lo := unitBits[(unit-1)%8]
	if action == Off {
		lo |= offBit
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

// Encode returns the bits of one repetition of the command, in
// transmission order.
func Encode(c Command) ([]bool, error) {
	word, err := DataWord(c.House, c.Unit, c.Action)
	if err != nil {
		return nil, err
	}

	bits := make([]bool, 0, FrameBits)
	bits = appendBits(bits, uint32(Header), 16)
	bits = appendBits(bits, uint32(word), 16)
	bits = appendBits(bits, uint32(Footer), 8)
	return bits, nil
}

func appendBits(bits []bool, v uint32, n int) []bool {
	for i := n - 1; i >= 0; i-- {
		bits = append(bits, v&(1<<uint(i)) != 0)
	}
	return bits
}
