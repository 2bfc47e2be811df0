// Package config holds named LoRa radio profiles and their JSON
// persistence. A profile is the operator-facing view of a radio setup;
// ToRadioConfig turns it into the driver's wire-level configuration.
package config

import (
	"fmt"
	"time"

	"github.com/herlein/golora/pkg/sx1262"
)

// Profile is a complete, human-editable radio configuration.
type Profile struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	FrequencyHz     uint32  `json:"frequency_hz"`
	SpreadingFactor uint8   `json:"spreading_factor"`
	BandwidthHz     float64 `json:"bandwidth_hz"`
	CodingRate      string  `json:"coding_rate"` // "4/5" .. "4/8"
	PreambleLength  uint16  `json:"preamble_length"`
	CRCEnabled      bool    `json:"crc_enabled"`
	InvertIQ        bool    `json:"invert_iq,omitempty"`

	TXPowerDBm int8 `json:"tx_power_dbm"`

	SyncWordPublic bool `json:"sync_word_public,omitempty"`

	// Board wiring options.
	DIO2RFSwitch bool `json:"dio2_rf_switch"`
	DIO3TCXO     bool `json:"dio3_tcxo"`

	MaxPayloadLen uint8 `json:"max_payload_len,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`
}

// bandwidthCodes maps the supported LoRa bandwidths in Hz to their register
// codes.
var bandwidthCodes = map[float64]byte{
	7810:   sx1262.BW7_8,
	10420:  sx1262.BW10_4,
	15630:  sx1262.BW15_6,
	20830:  sx1262.BW20_8,
	31250:  sx1262.BW31_25,
	41670:  sx1262.BW41_7,
	62500:  sx1262.BW62_5,
	125000: sx1262.BW125,
	250000: sx1262.BW250,
	500000: sx1262.BW500,
}

var codingRates = map[string]byte{
	"4/5": sx1262.CR4_5,
	"4/6": sx1262.CR4_6,
	"4/7": sx1262.CR4_7,
	"4/8": sx1262.CR4_8,
}

// ToRadioConfig converts the profile into the driver configuration,
// starting from the driver defaults so timing and PA settings stay sane.
func (p *Profile) ToRadioConfig() (sx1262.Config, error) {
	cfg := sx1262.DefaultConfig()

	bw, ok := bandwidthCodes[p.BandwidthHz]
	if !ok {
		return cfg, fmt.Errorf("profile %q: unsupported bandwidth %.0f Hz", p.Name, p.BandwidthHz)
	}
	cr, ok := codingRates[p.CodingRate]
	if !ok {
		return cfg, fmt.Errorf("profile %q: unsupported coding rate %q", p.Name, p.CodingRate)
	}
	if p.SpreadingFactor < 5 || p.SpreadingFactor > 12 {
		return cfg, fmt.Errorf("profile %q: spreading factor %d out of range", p.Name, p.SpreadingFactor)
	}

	cfg.FrequencyHz = p.FrequencyHz
	cfg.SpreadingFactor = p.SpreadingFactor
	cfg.Bandwidth = bw
	cfg.CodingRate = cr
	cfg.LowDataRateOpt = lowDataRateOptimize(p.SpreadingFactor, p.BandwidthHz)
	cfg.PreambleLength = p.PreambleLength
	cfg.CRCEnabled = p.CRCEnabled
	cfg.InvertIQ = p.InvertIQ
	cfg.TxPowerDBm = p.TXPowerDBm
	cfg.Dio2RfSwitch = p.DIO2RFSwitch
	cfg.Dio3Tcxo = p.DIO3TCXO
	if p.SyncWordPublic {
		cfg.SyncWord = sx1262.SyncWordPublic
	}
	if p.MaxPayloadLen != 0 {
		cfg.MaxPayloadLen = p.MaxPayloadLen
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	return cfg, nil
}

// lowDataRateOptimize reports whether the symbol time exceeds 16.38 ms, the
// point at which the chip requires the optimize flag.
func lowDataRateOptimize(sf uint8, bwHz float64) bool {
	if bwHz == 0 {
		return false
	}
	symbolMs := float64(uint32(1)<<sf) / bwHz * 1000
	return symbolMs > 16.38
}

// SymbolTime returns the LoRa symbol duration for the profile.
func (p *Profile) SymbolTime() time.Duration {
	if p.BandwidthHz == 0 {
		return 0
	}
	sec := float64(uint32(1)<<p.SpreadingFactor) / p.BandwidthHz
	return time.Duration(sec * float64(time.Second))
}

// String returns a one-line summary for tool output.
func (p *Profile) String() string {
	return fmt.Sprintf("%s: %.3f MHz SF%d BW%.1fkHz CR%s %+ddBm",
		p.Name, float64(p.FrequencyHz)/1e6, p.SpreadingFactor,
		p.BandwidthHz/1000, p.CodingRate, p.TXPowerDBm)
}

// Builtin profiles, selectable by name without a config file.
var Builtin = map[string]Profile{
	"us915": {
		Name:            "us915",
		Description:     "US 915 MHz band point-to-point, medium range",
		FrequencyHz:     902300000,
		SpreadingFactor: 7,
		BandwidthHz:     125000,
		CodingRate:      "4/8",
		PreambleLength:  14,
		CRCEnabled:      true,
		TXPowerDBm:      22,
		DIO2RFSwitch:    true,
		DIO3TCXO:        true,
	},
	"us915-longrange": {
		Name:            "us915-longrange",
		Description:     "US 915 MHz band, slow long-range settings",
		FrequencyHz:     902300000,
		SpreadingFactor: 11,
		BandwidthHz:     125000,
		CodingRate:      "4/8",
		PreambleLength:  16,
		CRCEnabled:      true,
		TXPowerDBm:      22,
		DIO2RFSwitch:    true,
		DIO3TCXO:        true,
	},
	"eu868": {
		Name:            "eu868",
		Description:     "EU 868 MHz band point-to-point",
		FrequencyHz:     868100000,
		SpreadingFactor: 7,
		BandwidthHz:     125000,
		CodingRate:      "4/5",
		PreambleLength:  8,
		CRCEnabled:      true,
		TXPowerDBm:      14,
		DIO2RFSwitch:    true,
		DIO3TCXO:        true,
	},
}

// Lookup returns a builtin profile by name.
func Lookup(name string) (Profile, error) {
	p, ok := Builtin[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown builtin profile %q", name)
	}
	return p, nil
}
