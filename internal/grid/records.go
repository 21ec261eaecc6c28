package grid

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// UnknownChargerTitle names chargers whose record carries no title.
	UnknownChargerTitle = "Unknown Charger"

	chargerNodePrefix = "ev_"
	chargerLinkPrefix = "link_"
	unknownRecordID   = "unknown"
)

// RecordID is an external identifier that may arrive as a JSON number or a
// JSON string. null and absent both decode to the empty ID.
type RecordID string

func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode record id: %w", err)
		}
		*id = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode record id: %w", err)
	}
	*id = RecordID(n.String())
	return nil
}

// AddressInfo is the location block of an external charger record.
type AddressInfo struct {
	Latitude  *float64 `json:"Latitude,omitempty"`
	Longitude *float64 `json:"Longitude,omitempty"`
	Title     *string  `json:"Title,omitempty"`
}

// ChargerRecord is one loosely structured point of interest as returned by
// a charger-location provider. Any field may be missing; the accessor
// methods apply the ingestion defaults.
type ChargerRecord struct {
	ID          RecordID     `json:"ID,omitempty"`
	AddressInfo *AddressInfo `json:"AddressInfo,omitempty"`
}

// NodeID derives the deterministic node ID for the record.
func (r ChargerRecord) NodeID() string {
	if r.ID == "" {
		return chargerNodePrefix + unknownRecordID
	}
	return chargerNodePrefix + string(r.ID)
}

// Coordinates returns latitude and longitude, defaulting each to 0.
func (r ChargerRecord) Coordinates() (lat, lon float64) {
	if r.AddressInfo == nil {
		return 0, 0
	}
	if r.AddressInfo.Latitude != nil {
		lat = *r.AddressInfo.Latitude
	}
	if r.AddressInfo.Longitude != nil {
		lon = *r.AddressInfo.Longitude
	}
	return lat, lon
}

// Title returns the display title or UnknownChargerTitle.
func (r ChargerRecord) Title() string {
	if r.AddressInfo == nil || r.AddressInfo.Title == nil {
		return UnknownChargerTitle
	}
	return *r.AddressInfo.Title
}
