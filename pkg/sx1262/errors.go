package sx1262

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBusTimeout means the busy line never deasserted within the
	// configured bound before a command exchange.
	ErrBusTimeout = errors.New("busy line timeout")

	// ErrConfigSequence means an arm or transfer was requested before the
	// required configuration commands were applied. This is a caller
	// programming error, not a chip condition.
	ErrConfigSequence = errors.New("configuration sequence violation")

	// ErrUnexpectedReply means a status byte or length field was
	// inconsistent with the command issued.
	ErrUnexpectedReply = errors.New("unexpected reply from chip")

	// ErrTimeout is the decoded chip timeout IRQ, surfaced once the retry
	// budget is exhausted.
	ErrTimeout = errors.New("radio operation timed out")

	// ErrRadioFault means the driver is in the Fault state and needs an
	// explicit Reset before further operations.
	ErrRadioFault = errors.New("radio is in fault state")
)

// ChipError is the bitmask decoded from the GetDeviceErrors reply.
type ChipError uint16

const (
	ChipErrRC64kCalib ChipError = 1 << 0
	ChipErrRC13MCalib ChipError = 1 << 1
	ChipErrPLLCalib   ChipError = 1 << 2
	ChipErrADCCalib   ChipError = 1 << 3
	ChipErrImgCalib   ChipError = 1 << 4
	ChipErrXoscStart  ChipError = 1 << 5
	ChipErrPLLLock    ChipError = 1 << 6
	ChipErrPaRamp     ChipError = 1 << 8
)

var chipErrNames = []struct {
	bit  ChipError
	name string
}{
	{ChipErrRC64kCalib, "RC64k calibration"},
	{ChipErrRC13MCalib, "RC13M calibration"},
	{ChipErrPLLCalib, "PLL calibration"},
	{ChipErrADCCalib, "ADC calibration"},
	{ChipErrImgCalib, "image calibration"},
	{ChipErrXoscStart, "XOSC start"},
	{ChipErrPLLLock, "PLL lock"},
	{ChipErrPaRamp, "PA ramp"},
}

func (e ChipError) Error() string {
	if e == 0 {
		return "no chip error"
	}
	var parts []string
	for _, n := range chipErrNames {
		if e&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("unknown chip error 0x%04X", uint16(e))
	}
	return "chip error: " + strings.Join(parts, ", ")
}
