package sx1262

import (
	"fmt"
	"time"
)

// Config is an immutable snapshot of the radio configuration. It must be
// fully applied (baseline + modulation + packet params) before any TX or RX
// arm command; Radio tracks application progress and rejects arms that skip
// steps.
type Config struct {
	FrequencyHz     uint32
	SpreadingFactor byte
	Bandwidth       byte
	CodingRate      byte
	LowDataRateOpt  bool
	PreambleLength  uint16
	CRCEnabled      bool
	InvertIQ        bool
	HeaderType      byte

	TxPowerDBm int8
	RampTime   byte

	// PA configuration per the datasheet's optimal-settings table.
	PaDutyCycle byte
	PaHpMax     byte

	SyncWord uint16

	// Regulator selects LDO-only or DC-DC supply regulation.
	Regulator byte

	// Board options: some modules route the antenna switch through DIO2
	// and power a TCXO from DIO3.
	Dio2RfSwitch bool
	Dio3Tcxo     bool
	TcxoVoltage  byte
	TcxoDelay    uint32

	// Packet memory partition.
	TxBaseAddress byte
	RxBaseAddress byte
	MaxPayloadLen byte

	// Driver behaviour.
	BusyTimeout    time.Duration
	BusyPoll       time.Duration
	RetryBudget    int // timeout re-arms before Fault
	ErrorThreshold int // consecutive chip errors before Fault
}

// DefaultConfig returns a 902.3 MHz point-to-point configuration: SF7,
// 125 kHz, CR 4/8, +22 dBm, variable-length packets with CRC.
func DefaultConfig() Config {
	return Config{
		FrequencyHz:     902300000,
		SpreadingFactor: SF7,
		Bandwidth:       BW125,
		CodingRate:      CR4_8,
		LowDataRateOpt:  false,
		PreambleLength:  14,
		CRCEnabled:      true,
		InvertIQ:        false,
		HeaderType:      HeaderVariable,
		TxPowerDBm:      22,
		RampTime:        Ramp1700us,
		PaDutyCycle:     0x04,
		PaHpMax:         0x07,
		SyncWord:        SyncWordPrivate,
		Regulator:       RegulatorDCDC,
		Dio2RfSwitch:    true,
		Dio3Tcxo:        true,
		TcxoVoltage:     Tcxo1V7,
		TcxoDelay:       5 << 6,
		TxBaseAddress:   DefaultTxBaseAddress,
		RxBaseAddress:   DefaultRxBaseAddress,
		MaxPayloadLen:   MaxPayloadSize,
		BusyTimeout:     DefaultBusyTimeout,
		BusyPoll:        DefaultBusyPoll,
		RetryBudget:     DefaultRetryBudget,
		ErrorThreshold:  DefaultErrThreshold,
	}
}

// Validate checks the parts of a Config the chip would otherwise reject at
// runtime.
func (c Config) Validate() error {
	if c.FrequencyHz == 0 {
		return fmt.Errorf("config: frequency not set")
	}
	if c.SpreadingFactor < SF5 || c.SpreadingFactor > SF12 {
		return fmt.Errorf("config: invalid spreading factor 0x%02X", c.SpreadingFactor)
	}
	if c.CodingRate < CR4_5 || c.CodingRate > CR4_8 {
		return fmt.Errorf("config: invalid coding rate 0x%02X", c.CodingRate)
	}
	if c.MaxPayloadLen == 0 {
		return fmt.Errorf("config: max payload length not set")
	}
	if int(c.RxBaseAddress)+int(c.MaxPayloadLen) > 256 {
		return fmt.Errorf("config: RX partition exceeds packet memory")
	}
	return nil
}

// Configuration progress stages. The chip does not persist a consistent
// state across mode switches, so modulation and packet parameters are
// re-applied on every arm; the baseline and buffer stages survive until the
// next hard reset.
type configStage uint8

const (
	stageBaseline configStage = 1 << iota
	stageBuffer
	stageModulation
	stagePacket
	stageIrq
)

const stageArmReady = stageBaseline | stageBuffer | stageModulation | stagePacket | stageIrq

// applyBaseline issues the one-time commands that must run after a hard
// reset and before first use, in the order the chip requires.
func (r *Radio) applyBaseline() error {
	c := r.cfg
	if err := r.dev.SetStandby(StandbyRC); err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	if err := r.dev.SetRegulatorMode(c.Regulator); err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	if c.Dio2RfSwitch {
		if err := r.dev.SetDio2AsRfSwitchCtrl(true); err != nil {
			return fmt.Errorf("baseline: %w", err)
		}
	}
	if c.Dio3Tcxo {
		if err := r.dev.SetDio3AsTcxoCtrl(c.TcxoVoltage, c.TcxoDelay); err != nil {
			return fmt.Errorf("baseline: %w", err)
		}
	}
	if err := r.dev.SetPacketType(PacketTypeLoRa); err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	if err := r.dev.SetRfFrequency(c.FrequencyHz); err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	if err := r.dev.SetPaConfig(c.PaDutyCycle, c.PaHpMax, 0x00, 0x01); err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	if err := r.dev.SetTxParams(c.TxPowerDBm, c.RampTime); err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	if c.SyncWord != 0 {
		if err := r.dev.SetSyncWord(c.SyncWord); err != nil {
			return fmt.Errorf("baseline: %w", err)
		}
	}
	if err := r.dev.ClearDeviceErrors(); err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	r.stages |= stageBaseline
	return nil
}

// applyBufferBase partitions packet memory. Required before WriteBuffer and
// before any arm.
func (r *Radio) applyBufferBase() error {
	if err := r.dev.SetBufferBaseAddress(r.cfg.TxBaseAddress, r.cfg.RxBaseAddress); err != nil {
		return fmt.Errorf("buffer base: %w", err)
	}
	r.stages |= stageBuffer
	return nil
}

// applyModulation re-sends the modulation parameters. Must be reissued
// whenever spreading factor, bandwidth or coding rate changes.
func (r *Radio) applyModulation() error {
	c := r.cfg
	if err := r.dev.SetModulationParams(c.SpreadingFactor, c.Bandwidth, c.CodingRate, c.LowDataRateOpt); err != nil {
		return fmt.Errorf("modulation params: %w", err)
	}
	r.stages |= stageModulation
	return nil
}

// applyPacketParams re-sends the frame format sized to payloadLen: the exact
// length for TX, the maximum acceptable length for RX.
func (r *Radio) applyPacketParams(payloadLen byte) error {
	c := r.cfg
	if err := r.dev.SetPacketParams(c.PreambleLength, c.HeaderType, payloadLen, c.CRCEnabled, c.InvertIQ); err != nil {
		return fmt.Errorf("packet params: %w", err)
	}
	r.stages |= stagePacket
	return nil
}

// armIrq enables the given interrupt sources and routes them all to DIO1.
func (r *Radio) armIrq(mask uint16) error {
	if err := r.dev.SetDioIrqParams(mask, mask); err != nil {
		return fmt.Errorf("irq params: %w", err)
	}
	r.stages |= stageIrq
	return nil
}

// checkArmReady rejects arm requests issued before the required
// configuration stages have been applied.
func (r *Radio) checkArmReady() error {
	if r.stages&stageArmReady != stageArmReady {
		return fmt.Errorf("%w: arm requested with stages 0x%02X", ErrConfigSequence, uint8(r.stages))
	}
	return nil
}
