package sx1262

import (
	"fmt"
	"time"
)

// EncodeFrequency converts a carrier frequency in Hz to the 32-bit PLL step
// value: round(freqHz * 2^25 / 32 MHz).
func EncodeFrequency(freqHz uint32) uint32 {
	return uint32(((uint64(freqHz) << 25) + XtalFreqHz/2) / XtalFreqHz)
}

// DecodeFrequency converts a PLL step value back to Hz, rounding to the
// nearest Hz. Round-tripping recovers the input within one register LSB
// (about 0.95 Hz).
func DecodeFrequency(steps uint32) uint32 {
	return uint32((uint64(steps)*XtalFreqHz + (1 << 24)) >> 25)
}

// EncodeTimeout converts a duration to the 24-bit timeout register value in
// 15.625 us steps. Zero means single-shot with the chip default; values that
// would overflow 24 bits saturate just below the continuous sentinel.
func EncodeTimeout(d time.Duration) uint32 {
	if d <= 0 {
		return RxSingle
	}
	ticks := uint64((d + TimeoutStep/2) / TimeoutStep)
	if ticks >= RxContinuous {
		return RxContinuous - 1
	}
	return uint32(ticks)
}

// RxTimeout selects the receive window for StartReceive. Zero is a
// single-shot window with the chip default, a positive duration bounds the
// window, and RxTimeoutContinuous keeps the receiver open indefinitely.
type RxTimeout time.Duration

const (
	RxTimeoutSingle     RxTimeout = 0
	RxTimeoutContinuous RxTimeout = -1
)

func (t RxTimeout) ticks() uint32 {
	if t < 0 {
		return RxContinuous
	}
	return EncodeTimeout(time.Duration(t))
}

// SetStandby puts the chip in standby. Mode is StandbyRC or StandbyXOSC.
func (d *Device) SetStandby(mode byte) error {
	return d.Exec(CmdSetStandby, []byte{mode})
}

// SetPacketType selects the packet engine. Must be the first configuration
// command after reset.
func (d *Device) SetPacketType(pktType byte) error {
	return d.Exec(CmdSetPacketType, []byte{pktType})
}

// SetRfFrequency programs the PLL for the given carrier frequency in Hz.
func (d *Device) SetRfFrequency(freqHz uint32) error {
	steps := EncodeFrequency(freqHz)
	return d.Exec(CmdSetRfFrequency, []byte{
		byte(steps >> 24), byte(steps >> 16), byte(steps >> 8), byte(steps),
	})
}

// SetPaConfig configures the power amplifier. The duty cycle and hpMax
// values come from the datasheet's optimal-settings table for the chosen
// output power; deviceSel is 0x00 for the SX1262.
func (d *Device) SetPaConfig(paDutyCycle, hpMax, deviceSel, paLut byte) error {
	return d.Exec(CmdSetPaConfig, []byte{paDutyCycle, hpMax, deviceSel, paLut})
}

// SetTxParams sets output power in dBm (-17..+22 for the SX1262) and the PA
// ramp time code.
func (d *Device) SetTxParams(powerDBm int8, rampTime byte) error {
	return d.Exec(CmdSetTxParams, []byte{byte(powerDBm), rampTime})
}

// SetModulationParams sets the LoRa modulation: spreading factor, bandwidth
// code, coding rate and the low-data-rate-optimize flag.
func (d *Device) SetModulationParams(sf, bw, cr byte, ldro bool) error {
	var l byte
	if ldro {
		l = 0x01
	}
	return d.Exec(CmdSetModulationParams, []byte{sf, bw, cr, l})
}

// SetPacketParams sets the LoRa frame format. payloadLen is the exact length
// for TX, the maximum acceptable length for RX.
func (d *Device) SetPacketParams(preambleLen uint16, headerType, payloadLen byte, crcOn, invertIQ bool) error {
	var crc, iq byte
	if crcOn {
		crc = 0x01
	}
	if invertIQ {
		iq = 0x01
	}
	return d.Exec(CmdSetPacketParams, []byte{
		byte(preambleLen >> 8), byte(preambleLen),
		headerType, payloadLen, crc, iq,
	})
}

// SetBufferBaseAddress partitions the 256-byte packet memory between TX and
// RX. Must precede WriteBuffer and any arm command.
func (d *Device) SetBufferBaseAddress(txBase, rxBase byte) error {
	return d.Exec(CmdSetBufferBaseAddress, []byte{txBase, rxBase})
}

// SetDioIrqParams enables the given IRQ sources and routes them to DIO1.
// The chip supports routing to three lines; this driver uses exactly one.
func (d *Device) SetDioIrqParams(irqMask, dio1Mask uint16) error {
	return d.Exec(CmdSetDioIrqParams, []byte{
		byte(irqMask >> 8), byte(irqMask),
		byte(dio1Mask >> 8), byte(dio1Mask),
		0x00, 0x00, // DIO2 unused
		0x00, 0x00, // DIO3 unused
	})
}

// SetDio2AsRfSwitchCtrl hands DIO2 to the chip as the TX/RX antenna switch
// control, for boards wired that way.
func (d *Device) SetDio2AsRfSwitchCtrl(enable bool) error {
	var v byte
	if enable {
		v = 0x01
	}
	return d.Exec(CmdSetDio2AsRfSwitchCtrl, []byte{v})
}

// SetDio3AsTcxoCtrl powers a TCXO from DIO3 at the given voltage code,
// allowing delay (in 15.625 us steps) for the oscillator to stabilise.
func (d *Device) SetDio3AsTcxoCtrl(voltage byte, delay uint32) error {
	return d.Exec(CmdSetDio3AsTcxoCtrl, []byte{
		voltage,
		byte(delay >> 16), byte(delay >> 8), byte(delay),
	})
}

// SetRegulatorMode selects LDO-only or DC-DC plus LDO supply regulation.
func (d *Device) SetRegulatorMode(mode byte) error {
	return d.Exec(CmdSetRegulatorMode, []byte{mode})
}

// SetTx arms the transmitter. timeout is in 15.625 us steps, 0 disables the
// TX timeout.
func (d *Device) SetTx(timeout uint32) error {
	return d.Exec(CmdSetTx, []byte{
		byte(timeout >> 16), byte(timeout >> 8), byte(timeout),
	})
}

// SetRx arms the receiver. timeout is in 15.625 us steps; RxSingle is
// single-shot with the chip default, RxContinuous keeps the receiver open.
func (d *Device) SetRx(timeout uint32) error {
	return d.Exec(CmdSetRx, []byte{
		byte(timeout >> 16), byte(timeout >> 8), byte(timeout),
	})
}

// WriteBuffer copies payload into packet memory starting at offset.
func (d *Device) WriteBuffer(offset byte, payload []byte) error {
	p := make([]byte, 1+len(payload))
	p[0] = offset
	copy(p[1:], payload)
	return d.Exec(CmdWriteBuffer, p)
}

// ReadBuffer reads n bytes of packet memory starting at offset. The 3-byte
// wire header (opcode echo, offset echo, status) is discarded.
func (d *Device) ReadBuffer(offset byte, n int) ([]byte, error) {
	return d.Query(CmdReadBuffer, []byte{offset}, n)
}

// WriteRegister writes to the register address space (sync word etc.).
func (d *Device) WriteRegister(addr uint16, data []byte) error {
	p := make([]byte, 2+len(data))
	p[0] = byte(addr >> 8)
	p[1] = byte(addr)
	copy(p[2:], data)
	return d.Exec(CmdWriteRegister, p)
}

// ReadRegister reads n bytes from the register address space.
func (d *Device) ReadRegister(addr uint16, n int) ([]byte, error) {
	return d.Query(CmdReadRegister, []byte{byte(addr >> 8), byte(addr)}, n)
}

// SetSyncWord writes the 2-byte LoRa sync word register.
func (d *Device) SetSyncWord(sync uint16) error {
	return d.WriteRegister(RegLoRaSyncWordMSB, []byte{byte(sync >> 8), byte(sync)})
}

// GetIrqStatus reads the latched IRQ bitmask.
func (d *Device) GetIrqStatus() (uint16, error) {
	r, err := d.Query(CmdGetIrqStatus, nil, 2)
	if err != nil {
		return 0, err
	}
	return uint16(r[0])<<8 | uint16(r[1]), nil
}

// ClearIrqStatus clears the given bits in the IRQ latch.
func (d *Device) ClearIrqStatus(mask uint16) error {
	return d.Exec(CmdClearIrqStatus, []byte{byte(mask >> 8), byte(mask)})
}

// RxBufferStatus describes the most recently received packet.
type RxBufferStatus struct {
	PayloadLength byte
	StartOffset   byte
}

// GetRxBufferStatus reads the received payload length and its start offset
// within packet memory.
func (d *Device) GetRxBufferStatus() (RxBufferStatus, error) {
	r, err := d.Query(CmdGetRxBufferStatus, nil, 2)
	if err != nil {
		return RxBufferStatus{}, err
	}
	return RxBufferStatus{PayloadLength: r[0], StartOffset: r[1]}, nil
}

// PacketStatus carries the link quality measurements for the last packet.
type PacketStatus struct {
	RssiDBm int // average RSSI over the packet
	SnrDB   int // estimated SNR
}

// GetPacketStatus reads RSSI and SNR of the last received LoRa packet.
func (d *Device) GetPacketStatus() (PacketStatus, error) {
	r, err := d.Query(CmdGetPacketStatus, nil, 3)
	if err != nil {
		return PacketStatus{}, err
	}
	return PacketStatus{
		RssiDBm: -int(r[0]) / 2,
		SnrDB:   int(int8(r[1])) / 4,
	}, nil
}

// GetDeviceErrors reads the latched error flags register.
func (d *Device) GetDeviceErrors() (ChipError, error) {
	r, err := d.Query(CmdGetDeviceErrors, nil, 2)
	if err != nil {
		return 0, err
	}
	return ChipError(uint16(r[0])<<8 | uint16(r[1])), nil
}

// ClearDeviceErrors clears all latched error flags.
func (d *Device) ClearDeviceErrors() error {
	return d.Exec(CmdClearDeviceErrors, []byte{0x00, 0x00})
}

// CheckCommandStatus reads the status byte and converts a chip-reported
// command failure into ErrUnexpectedReply.
func (d *Device) CheckCommandStatus() error {
	s, err := d.GetStatus()
	if err != nil {
		return err
	}
	if s.Failed() {
		return fmt.Errorf("%w: %s", ErrUnexpectedReply, s)
	}
	return nil
}
