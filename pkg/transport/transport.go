// Package transport provides the host-side bus adapter for the SX1262
// driver: an SPI port plus the BUSY, NRESET and DIO1 GPIO lines, built on
// periph.io. The driver core never touches periph directly; it sees only
// the sx1262.Transport interface this package implements.
package transport

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Options selects the SPI port and GPIO pins wired to the radio module.
// Names follow periph.io conventions ("SPI0.0", "GPIO24", ...).
type Options struct {
	Port     string // SPI port, e.g. "SPI0.0"; empty uses the first available
	SpeedHz  int64  // SPI clock, 0 defaults to 8 MHz
	BusyPin  string // chip BUSY line (input)
	ResetPin string // chip NRESET line (output, active low)
	DIO1Pin  string // chip DIO1 interrupt line (input)
}

// SPI is a periph.io-backed transport. It implements sx1262.Transport and
// additionally exposes the DIO1 edge watcher the interrupt dispatch hangs
// off.
type SPI struct {
	port  spi.PortCloser
	conn  spi.Conn
	busy  gpio.PinIO
	reset gpio.PinIO
	dio1  gpio.PinIO

	watchStop chan struct{}
	watchDone chan struct{}
}

// Open initialises the periph host, claims the SPI port and the three GPIO
// lines, and leaves NRESET deasserted.
func Open(opts Options) (*SPI, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	port, err := spireg.Open(opts.Port)
	if err != nil {
		return nil, fmt.Errorf("open SPI port %q: %w", opts.Port, err)
	}

	speed := physic.Frequency(opts.SpeedHz) * physic.Hertz
	if opts.SpeedHz == 0 {
		speed = 8 * physic.MegaHertz
	}
	conn, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("configure SPI port: %w", err)
	}

	s := &SPI{port: port, conn: conn}

	if s.busy = gpioreg.ByName(opts.BusyPin); s.busy == nil {
		port.Close()
		return nil, fmt.Errorf("busy pin %q not found", opts.BusyPin)
	}
	if err := s.busy.In(gpio.PullDown, gpio.NoEdge); err != nil {
		port.Close()
		return nil, fmt.Errorf("configure busy pin: %w", err)
	}

	if s.reset = gpioreg.ByName(opts.ResetPin); s.reset == nil {
		port.Close()
		return nil, fmt.Errorf("reset pin %q not found", opts.ResetPin)
	}
	if err := s.reset.Out(gpio.High); err != nil {
		port.Close()
		return nil, fmt.Errorf("configure reset pin: %w", err)
	}

	if s.dio1 = gpioreg.ByName(opts.DIO1Pin); s.dio1 == nil {
		port.Close()
		return nil, fmt.Errorf("dio1 pin %q not found", opts.DIO1Pin)
	}

	return s, nil
}

// Exchange performs one full-duplex, chip-select framed transfer.
func (s *SPI) Exchange(out, in []byte) error {
	if len(out) != len(in) {
		return fmt.Errorf("exchange: out %d bytes, in %d bytes", len(out), len(in))
	}
	return s.conn.Tx(out, in)
}

// Busy samples the chip's BUSY line.
func (s *SPI) Busy() bool {
	return s.busy.Read() == gpio.High
}

// Reset pulses NRESET low. The chip reboots its firmware and raises BUSY
// until ready; command gating in the driver absorbs that.
func (s *SPI) Reset() error {
	if err := s.reset.Out(gpio.Low); err != nil {
		return fmt.Errorf("assert reset: %w", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := s.reset.Out(gpio.High); err != nil {
		return fmt.Errorf("deassert reset: %w", err)
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

// WatchDIO1 starts a background goroutine that calls handler on each rising
// edge of DIO1, emulating an interrupt callback over periph.io's blocking
// WaitForEdge.
func (s *SPI) WatchDIO1(handler func()) error {
	if s.watchStop != nil {
		return fmt.Errorf("dio1 already watched")
	}
	if err := s.dio1.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return fmt.Errorf("configure dio1 pin: %w", err)
	}

	s.watchStop = make(chan struct{})
	s.watchDone = make(chan struct{})
	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			// Short timeout so the stop channel is checked
			// periodically even when the line is quiet.
			if !s.dio1.WaitForEdge(500 * time.Millisecond) {
				continue
			}
			handler()
		}
	}(s.watchStop, s.watchDone)
	return nil
}

// Unwatch stops the DIO1 watcher.
func (s *SPI) Unwatch() {
	if s.watchStop == nil {
		return
	}
	close(s.watchStop)
	<-s.watchDone
	s.watchStop, s.watchDone = nil, nil
	s.dio1.In(gpio.PullDown, gpio.NoEdge)
}

// Close stops the watcher and releases the SPI port.
func (s *SPI) Close() error {
	s.Unwatch()
	return s.port.Close()
}
