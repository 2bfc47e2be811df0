// Package sx1262 drives a Semtech SX1262 LoRa transceiver over its SPI
// command interface.
//
// The package is split along the chip's own layering: Device speaks the
// opcode protocol (command framing, busy-wait gating, status decoding),
// Config and its apply methods sequence the configuration commands, and
// Radio runs the interrupt-driven standby/TX/RX state machine on top.
//
// The SPI transfer itself and the GPIO pins are external collaborators
// behind the Transport interface; pkg/transport provides a periph.io
// implementation for Linux hosts, and the tests use a scripted fake.
package sx1262

import (
	"fmt"
	"sync"
	"time"
)

// Transport is the bus boundary the driver talks through. Exchange performs
// one full-duplex, chip-select framed transfer; out and in must be the same
// length. Busy samples the chip's busy line. Reset pulses the hard-reset
// line and returns once the chip is out of reset.
type Transport interface {
	Exchange(out, in []byte) error
	Busy() bool
	Reset() error
}

// Device owns the command exchange with one SX1262. Exactly one exchange may
// be in flight at a time; the mutex also keeps the busy-wait and the
// chip-select framed transfer paired.
type Device struct {
	tr Transport

	busMu       sync.Mutex
	busyTimeout time.Duration
	busyPoll    time.Duration
}

// NewDevice wraps a transport. Zero durations select the defaults.
func NewDevice(tr Transport, busyTimeout, busyPoll time.Duration) *Device {
	if busyTimeout == 0 {
		busyTimeout = DefaultBusyTimeout
	}
	if busyPoll == 0 {
		busyPoll = DefaultBusyPoll
	}
	return &Device{tr: tr, busyTimeout: busyTimeout, busyPoll: busyPoll}
}

// HardReset pulses the reset line. The chip reverts to its power-on
// configuration; callers must re-run the baseline sequence afterwards.
func (d *Device) HardReset() error {
	d.busMu.Lock()
	defer d.busMu.Unlock()
	if err := d.tr.Reset(); err != nil {
		return fmt.Errorf("hard reset: %w", err)
	}
	return nil
}

// waitReady polls the busy line until it deasserts. The chip is not
// guaranteed ready immediately after the previous reply, so every exchange
// is gated on this. Exceeding the bound is a fault, never an infinite loop.
func (d *Device) waitReady() error {
	deadline := time.Now().Add(d.busyTimeout)
	for d.tr.Busy() {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %v", ErrBusTimeout, d.busyTimeout)
		}
		time.Sleep(d.busyPoll)
	}
	return nil
}

// Exec sends a write-only command: the opcode followed by its fixed-layout
// parameter bytes. The chip's echoed bytes are discarded.
func (d *Device) Exec(opcode byte, params []byte) error {
	d.busMu.Lock()
	defer d.busMu.Unlock()

	if err := d.waitReady(); err != nil {
		return fmt.Errorf("command 0x%02X: %w", opcode, err)
	}

	out := make([]byte, 1+len(params))
	out[0] = opcode
	copy(out[1:], params)
	in := make([]byte, len(out))
	if err := d.tr.Exchange(out, in); err != nil {
		return fmt.Errorf("command 0x%02X: %w", opcode, err)
	}
	return nil
}

// Query sends a read command and returns replyLen payload bytes. On the
// wire the frame is opcode, the parameter bytes, one NOP that clocks out the
// status byte, then the payload; the status/echo bytes are discarded.
func (d *Device) Query(opcode byte, params []byte, replyLen int) ([]byte, error) {
	d.busMu.Lock()
	defer d.busMu.Unlock()

	if err := d.waitReady(); err != nil {
		return nil, fmt.Errorf("command 0x%02X: %w", opcode, err)
	}

	total := 1 + len(params) + 1 + replyLen
	out := make([]byte, total)
	out[0] = opcode
	copy(out[1:], params)
	in := make([]byte, total)
	if err := d.tr.Exchange(out, in); err != nil {
		return nil, fmt.Errorf("command 0x%02X: %w", opcode, err)
	}

	reply := make([]byte, replyLen)
	copy(reply, in[total-replyLen:])
	return reply, nil
}

// Status is the chip status byte returned by GetStatus: chip mode in bits
// [6:4], last command status in bits [3:1].
type Status byte

// Mode returns the chip mode field.
func (s Status) Mode() byte { return byte(s&0x70) >> 4 }

// Cmd returns the command status field.
func (s Status) Cmd() byte { return byte(s&0x0E) >> 1 }

// Failed reports whether the last command was rejected by the chip.
func (s Status) Failed() bool {
	return s.Cmd() == CmdStatusProcessError || s.Cmd() == CmdStatusExecFailure
}

func (s Status) String() string {
	mode := "?"
	switch s.Mode() {
	case ChipModeStandbyRC:
		mode = "STDBY_RC"
	case ChipModeStandbyXOSC:
		mode = "STDBY_XOSC"
	case ChipModeFS:
		mode = "FS"
	case ChipModeRX:
		mode = "RX"
	case ChipModeTX:
		mode = "TX"
	}
	cmd := "?"
	switch s.Cmd() {
	case CmdStatusDataAvailable:
		cmd = "data available"
	case CmdStatusTimeout:
		cmd = "command timeout"
	case CmdStatusProcessError:
		cmd = "command processing error"
	case CmdStatusExecFailure:
		cmd = "failure to execute"
	case CmdStatusTxDone:
		cmd = "tx done"
	}
	return fmt.Sprintf("mode=%s cmd=%s (0x%02X)", mode, cmd, byte(s))
}

// GetStatus reads the chip status byte. The frame is the opcode plus one
// NOP; the status arrives in the echoed second byte.
func (d *Device) GetStatus() (Status, error) {
	d.busMu.Lock()
	defer d.busMu.Unlock()

	if err := d.waitReady(); err != nil {
		return 0, fmt.Errorf("get status: %w", err)
	}

	out := []byte{CmdGetStatus, 0x00}
	in := make([]byte, 2)
	if err := d.tr.Exchange(out, in); err != nil {
		return 0, fmt.Errorf("get status: %w", err)
	}
	return Status(in[1]), nil
}
