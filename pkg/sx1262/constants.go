package sx1262

import "time"

// Command opcodes (SX1261/2 datasheet chapter 13)
const (
	CmdSetStandby            = 0x80
	CmdSetRx                 = 0x82
	CmdSetTx                 = 0x83
	CmdSetRfFrequency        = 0x86
	CmdSetPacketType         = 0x8A
	CmdSetModulationParams   = 0x8B
	CmdSetPacketParams       = 0x8C
	CmdSetTxParams           = 0x8E
	CmdSetBufferBaseAddress  = 0x8F
	CmdSetPaConfig           = 0x95
	CmdSetRegulatorMode      = 0x96
	CmdSetDio3AsTcxoCtrl     = 0x97
	CmdSetDio2AsRfSwitchCtrl = 0x9D
	CmdGetStatus             = 0xC0
	CmdGetIrqStatus          = 0x12
	CmdGetRxBufferStatus     = 0x13
	CmdGetPacketStatus       = 0x14
	CmdGetDeviceErrors       = 0x17
	CmdClearIrqStatus        = 0x02
	CmdClearDeviceErrors     = 0x07
	CmdSetDioIrqParams       = 0x08
	CmdWriteRegister         = 0x0D
	CmdWriteBuffer           = 0x0E
	CmdReadRegister          = 0x1D
	CmdReadBuffer            = 0x1E
)

// IRQ status bits (2-byte register, bit 0 first)
const (
	IrqTxDone           uint16 = 1 << 0
	IrqRxDone           uint16 = 1 << 1
	IrqPreambleDetected uint16 = 1 << 2
	IrqSyncWordValid    uint16 = 1 << 3
	IrqHeaderValid      uint16 = 1 << 4
	IrqHeaderErr        uint16 = 1 << 5
	IrqCrcErr           uint16 = 1 << 6
	IrqCadDone          uint16 = 1 << 7
	IrqCadDetected      uint16 = 1 << 8
	IrqTimeout          uint16 = 1 << 9

	IrqAll uint16 = 0x03FF
)

// SetStandby modes
const (
	StandbyRC   = 0x00 // 13 MHz RC oscillator
	StandbyXOSC = 0x01 // crystal oscillator stays on
)

// Packet types
const (
	PacketTypeGFSK = 0x00
	PacketTypeLoRa = 0x01
)

// Chip modes reported in the status byte, bits [6:4]
const (
	ChipModeStandbyRC   = 0x02
	ChipModeStandbyXOSC = 0x03
	ChipModeFS          = 0x04
	ChipModeRX          = 0x05
	ChipModeTX          = 0x06
)

// Command statuses reported in the status byte, bits [3:1]
const (
	CmdStatusDataAvailable = 0x02
	CmdStatusTimeout       = 0x03
	CmdStatusProcessError  = 0x04
	CmdStatusExecFailure   = 0x05
	CmdStatusTxDone        = 0x06
)

// LoRa spreading factors (register values equal the SF number)
const (
	SF5  = 0x05
	SF6  = 0x06
	SF7  = 0x07
	SF8  = 0x08
	SF9  = 0x09
	SF10 = 0x0A
	SF11 = 0x0B
	SF12 = 0x0C
)

// LoRa bandwidth codes
const (
	BW7_8   = 0x00 // 7.81 kHz
	BW10_4  = 0x08
	BW15_6  = 0x01
	BW20_8  = 0x09
	BW31_25 = 0x02
	BW41_7  = 0x0A
	BW62_5  = 0x03
	BW125   = 0x04
	BW250   = 0x05
	BW500   = 0x06
)

// LoRa coding rates
const (
	CR4_5 = 0x01
	CR4_6 = 0x02
	CR4_7 = 0x03
	CR4_8 = 0x04
)

// Header types for SetPacketParams
const (
	HeaderVariable = 0x00 // explicit header, length carried on air
	HeaderFixed    = 0x01 // implicit header, length fixed both sides
)

// PA ramp times for SetTxParams
const (
	Ramp10us   = 0x00
	Ramp20us   = 0x01
	Ramp40us   = 0x02
	Ramp80us   = 0x03
	Ramp200us  = 0x04
	Ramp800us  = 0x05
	Ramp1700us = 0x06
	Ramp3400us = 0x07
)

// DIO3 TCXO supply voltages
const (
	Tcxo1V6 = 0x00
	Tcxo1V7 = 0x01
	Tcxo1V8 = 0x02
	Tcxo2V2 = 0x03
	Tcxo2V4 = 0x04
	Tcxo2V7 = 0x05
	Tcxo3V0 = 0x06
	Tcxo3V3 = 0x07
)

// Regulator modes
const (
	RegulatorLDO  = 0x00
	RegulatorDCDC = 0x01
)

// Registers reachable through ReadRegister/WriteRegister
const (
	RegLoRaSyncWordMSB = 0x0740
)

// LoRa sync words
const (
	SyncWordPrivate = 0x1424
	SyncWordPublic  = 0x3444
)

// Crystal and timing constants
const (
	XtalFreqHz = 32000000

	// RX/TX timeout registers count in steps of 15.625 us.
	TimeoutStep = 15625 * time.Nanosecond

	// RxContinuous keeps the receiver open until explicitly stopped.
	RxContinuous = 0xFFFFFF

	// RxSingle uses the chip's single-shot default (no timeout).
	RxSingle = 0x000000
)

// Packet memory is 256 bytes, split in half between TX and RX by default.
const (
	DefaultTxBaseAddress = 0x00
	DefaultRxBaseAddress = 0x80
	MaxPayloadSize       = 128
)

// Busy-line polling defaults
const (
	DefaultBusyTimeout  = 300 * time.Millisecond
	DefaultBusyPoll     = 100 * time.Microsecond
	DefaultRetryBudget  = 5
	DefaultErrThreshold = 3
)
