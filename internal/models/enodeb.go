package models

import (
	"encoding/json"
	"time"
)

// Enodeb is the persisted view of one managed eNodeB
type Enodeb struct {
	Serial     string `json:"serial" db:"serial"`
	DeviceName string `json:"deviceName" db:"device_name"`

	OUI          string `json:"oui,omitempty" db:"oui"`
	Manufacturer string `json:"manufacturer,omitempty" db:"manufacturer"`
	ProductClass string `json:"productClass,omitempty" db:"product_class"`
	SWVersion    string `json:"swVersion,omitempty" db:"sw_version"`

	State          string     `json:"state" db:"state"`
	Connected      bool       `json:"connected" db:"connected"`
	RebootRequired bool       `json:"rebootRequired" db:"reboot_required"`
	LastSeenAt     *time.Time `json:"lastSeenAt,omitempty" db:"last_seen_at"`

	// Transient holds the last status readings (op state, GPS, MME link)
	Transient Variables `json:"transient,omitempty" db:"transient"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// EnodebConfig is an operator override of the desired configuration for one device.
// Config carries the JSON encoding of mconfig.EnodebConfig.
type EnodebConfig struct {
	Serial    string          `json:"serial" db:"serial"`
	Config    json.RawMessage `json:"config" db:"config"`
	UpdatedBy string          `json:"updatedBy,omitempty" db:"updated_by"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}
