package aqualink

import (
	"errors"
	"time"
)

// Canonical device names accepted by the gateway. The vendor command each
// one maps to lives in the client; jet-pump is installation specific.
const (
	DeviceSpaMode    = "spa-mode"
	DeviceSpaHeater  = "spa-heater"
	DeviceJetPump    = "jet-pump"
	DeviceFilterPump = "filter-pump"
)

// Devices lists every canonical device name, in shutdown-sweep order.
var Devices = []string{DeviceSpaMode, DeviceSpaHeater, DeviceJetPump, DeviceFilterPump}

// IsValidDevice reports whether name is a recognized canonical device.
func IsValidDevice(name string) bool {
	for _, d := range Devices {
		if d == name {
			return true
		}
	}
	return false
}

var (
	// ErrAuthFailed indicates the vendor rejected our credentials or the
	// session could not be established. Not retried automatically.
	ErrAuthFailed = errors.New("aqualink authentication failed")

	// ErrUnknownDevice indicates a device name outside the canonical set.
	// Returned before any vendor call is issued.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrStatusUnavailable indicates the status fetch or parse failed.
	// A snapshot is never partially populated.
	ErrStatusUnavailable = errors.New("spa status retrieval failed")
)

// Snapshot is the canonical device status record derived from one vendor
// read. Numeric fields are nil when the vendor reported nothing parsable;
// nil is distinct from zero downstream.
type Snapshot struct {
	AirTemp     *int            `json:"airTemp"`
	SpaTemp     *int            `json:"spaTemp"`
	PoolTemp    *int            `json:"poolTemp"`
	SpaSetPoint *int            `json:"spaSetPoint"`
	SpaMode     bool            `json:"spaMode"`
	SpaHeater   bool            `json:"spaHeater"`
	JetPump     bool            `json:"jetPump"`
	FilterPump  bool            `json:"filterPump"`
	Connected   bool            `json:"connected"`
	Aux         map[string]bool `json:"auxCircuits,omitempty"`
	LastUpdate  time.Time       `json:"lastUpdate"`
}

// On reports whether the named canonical device is on in this snapshot.
func (s *Snapshot) On(device string) bool {
	switch device {
	case DeviceSpaMode:
		return s.SpaMode
	case DeviceSpaHeater:
		return s.SpaHeater
	case DeviceJetPump:
		return s.JetPump
	case DeviceFilterPump:
		return s.FilterPump
	}
	return false
}
