package floorplan

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

// FloorPlanPosition is a floor-relative position in meters. X and Y are
// pointers because the upstream payload omits them when unknown.
type FloorPlanPosition struct {
	ID   string   `json:"id,omitempty"`
	Name string   `json:"name"`
	X    *float64 `json:"x"`
	Y    *float64 `json:"y"`
}

// HasCoordinates reports whether both axes are present
func (p *FloorPlanPosition) HasCoordinates() bool {
	return p != nil && p.X != nil && p.Y != nil
}

// ReportingAP is an access point that heard at least one beacon in the batch
type ReportingAP struct {
	MAC       string             `json:"mac" validate:"required"`
	Name      string             `json:"name"`
	FloorPlan *FloorPlanPosition `json:"floorPlan"`
}

// BleBeacon is the advertisement data of a tag
type BleBeacon struct {
	UUID    string `json:"uuid"`
	Major   *int   `json:"major,omitempty"`
	Minor   *int   `json:"minor,omitempty"`
	BleType string `json:"bleType"`
}

// Location is a triangulated position, only present when three or more APs heard the tag
type Location struct {
	FloorPlan *FloorPlanPosition `json:"floorPlan"`
}

// LatestRecord carries the AP that last heard the tag
type LatestRecord struct {
	Time          string `json:"time,omitempty"`
	NearestAPMAC  string `json:"nearestApMac"`
	NearestAPRSSI *int   `json:"nearestApRssi,omitempty"`
}

// Observation is one BLE device sighting
type Observation struct {
	Name         string        `json:"name"`
	ClientMAC    string        `json:"clientMac,omitempty"`
	BleBeacons   []BleBeacon   `json:"bleBeacons"`
	Locations    []Location    `json:"locations"`
	LatestRecord *LatestRecord `json:"latestRecord"`
}

// DisplayName returns the device name, or its MAC when unnamed
func (o Observation) DisplayName() string {
	if o.Name != "" {
		return o.Name
	}
	return o.ClientMAC
}

// UUID returns the first advertised beacon UUID or ""
func (o Observation) UUID() string {
	if len(o.BleBeacons) == 0 {
		return ""
	}
	return o.BleBeacons[0].UUID
}

// BeaconType returns the first advertised beacon type or "Unknown"
func (o Observation) BeaconType() string {
	if len(o.BleBeacons) == 0 || o.BleBeacons[0].BleType == "" {
		return "Unknown"
	}
	return o.BleBeacons[0].BleType
}

// Label is the two-line text drawn next to the device marker
func (o Observation) Label() string {
	return fmt.Sprintf("%s - %s\n%s", o.DisplayName(), o.BeaconType(), o.UUID())
}

// NearestAP returns the MAC of the AP that last heard the device
func (o Observation) NearestAP() (string, bool) {
	if o.LatestRecord == nil || o.LatestRecord.NearestAPMAC == "" {
		return "", false
	}
	return o.LatestRecord.NearestAPMAC, true
}

// ObservationBatch is one delivery of sightings for a single network
type ObservationBatch struct {
	NetworkID    string        `json:"networkId" validate:"required"`
	ReportingAPs []ReportingAP `json:"reportingAps" validate:"dive"`
	Observations []Observation `json:"observations"`
}

// Envelope is the webhook body wrapping a batch
type Envelope struct {
	Version string            `json:"version" validate:"required"`
	Secret  string            `json:"secret"`
	Type    string            `json:"type"`
	Data    *ObservationBatch `json:"data" validate:"required"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateBatch checks the required batch fields
func ValidateBatch(b *ObservationBatch) error {
	if b == nil {
		return fmt.Errorf("%w: no data", ErrMalformedBatch)
	}
	return validationError(getValidator().Struct(b))
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrMalformedBatch, strings.Join(msgs, "; "))
}

// DecodeEnvelope parses and validates a webhook body. Secret and version
// checks are left to the caller.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	if err := validationError(getValidator().Struct(&env)); err != nil {
		return nil, err
	}
	if err := ValidateBatch(env.Data); err != nil {
		return nil, err
	}
	return &env, nil
}

// DecodeBatch accepts either a full webhook body or a bare batch
func DecodeBatch(data []byte) (*ObservationBatch, error) {
	var probe struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	if len(probe.Data) > 0 {
		data = probe.Data
	}

	var b ObservationBatch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	if err := ValidateBatch(&b); err != nil {
		return nil, err
	}
	return &b, nil
}
