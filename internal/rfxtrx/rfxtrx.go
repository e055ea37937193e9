// Package rfxtrx mirrors X10 commands through an RFXtrx433 USB transceiver,
// for installations where the Firecracker's RF range does not reach every
// receiver.
package rfxtrx

import (
	"fmt"
	"time"

	"github.com/barnybug/gorfxtrx"
	"github.com/sweeney/reed-table/internal/cm17a"
)

// x10Lighting is the RFXtrx lighting1 subtype for plain X10.
const x10Lighting = 0x00

// DefaultGap separates repeated packets; the transceiver queues writes
// but receivers drop back-to-back duplicates.
const DefaultGap = 100 * time.Millisecond

// Device is the subset of *gorfxtrx.Device the sender needs.
type Device interface {
	Send(p gorfxtrx.OutPacket) error
}

// Sender transmits commands as X10 lighting packets.
type Sender struct {
	dev   Device
	close func()
	gap   time.Duration
	sleep func(time.Duration)
}

// Open opens the transceiver on a serial port and resets it.
func Open(path string) (*Sender, error) {
	dev, err := gorfxtrx.Open(path, false)
	if err != nil {
		return nil, fmt.Errorf("open rfxtrx %s: %w", path, err)
	}
	s := NewSender(dev, DefaultGap, nil)
	s.close = dev.Close
	return s, nil
}

// NewSender wraps an already opened device. A nil sleep uses time.Sleep.
func NewSender(dev Device, gap time.Duration, sleep func(time.Duration)) *Sender {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Sender{dev: dev, gap: gap, sleep: sleep}
}

// Packet builds the lighting packet for a command.
func Packet(c cm17a.Command) (*gorfxtrx.LightingX10, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	house := cm17a.NormalizeHouse(c.House) - 'A' + 'a'
	id := fmt.Sprintf("%c%02x", house, c.Unit)
	command := "on"
	if c.Action == cm17a.Off {
		command = "off"
	}
	return gorfxtrx.NewLightingX10(x10Lighting, id, command)
}

// Transmit sends the packet c.Repeat times.
func (s *Sender) Transmit(c cm17a.Command) error {
	pkt, err := Packet(c)
	if err != nil {
		return err
	}
	for i := 0; i < c.Repeat; i++ {
		if i > 0 {
			s.sleep(s.gap)
		}
		if err := s.dev.Send(pkt); err != nil {
			return fmt.Errorf("rfxtrx: send %s: %w", c, err)
		}
	}
	return nil
}

// Close releases the serial port.
func (s *Sender) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
