package floorplan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleWebhook = `{
  "version": "3.0",
  "secret": "s3cret",
  "type": "BLE",
  "data": {
    "networkId": "N_1",
    "reportingAps": [
      {"mac": "0c:8d:db:00:00:01", "name": "Lobby", "floorPlan": {"name": "Ground", "x": 4.2, "y": 7.9}}
    ],
    "observations": [
      {
        "name": "forklift-7",
        "clientMac": "aa:bb:cc:dd:ee:ff",
        "bleBeacons": [{"uuid": "f7826da6-1234", "bleType": "iBeacon", "major": 1, "minor": 2}],
        "locations": [{"floorPlan": {"name": "Ground", "x": 1.5, "y": 2.5}}],
        "latestRecord": {"time": "2024-03-05T14:07:00Z", "nearestApMac": "0c:8d:db:00:00:01", "nearestApRssi": -61}
      },
      {"name": "", "clientMac": "11:22:33:44:55:66", "bleBeacons": [], "locations": []}
    ]
  }
}`

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(sampleWebhook))
	require.NoError(t, err)

	assert.Equal(t, "3.0", env.Version)
	assert.Equal(t, "s3cret", env.Secret)
	require.NotNil(t, env.Data)
	assert.Equal(t, "N_1", env.Data.NetworkID)
	require.Len(t, env.Data.ReportingAPs, 1)
	require.Len(t, env.Data.Observations, 2)

	tag := env.Data.Observations[0]
	assert.Equal(t, "f7826da6-1234", tag.UUID())
	assert.Equal(t, "iBeacon", tag.BeaconType())
	assert.Equal(t, "forklift-7 - iBeacon\nf7826da6-1234", tag.Label())
	mac, ok := tag.NearestAP()
	assert.True(t, ok)
	assert.Equal(t, "0c:8d:db:00:00:01", mac)
	assert.True(t, tag.Locations[0].FloorPlan.HasCoordinates())

	bare := env.Data.Observations[1]
	assert.Equal(t, "", bare.UUID())
	assert.Equal(t, "Unknown", bare.BeaconType())
	assert.Equal(t, "11:22:33:44:55:66 - Unknown\n", bare.Label())
	_, ok = bare.NearestAP()
	assert.False(t, ok)
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing data", `{"version": "3.0", "secret": "x"}`},
		{"missing version", `{"secret": "x", "data": {"networkId": "N"}}`},
		{"missing network", `{"version": "3.0", "data": {"observations": []}}`},
		{"ap without mac", `{"version": "3.0", "data": {"networkId": "N", "reportingAps": [{"name": "x"}]}}`},
		{"wrong type", `{"version": "3.0", "data": {"networkId": 7}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedBatch), "got %v", err)
		})
	}
}

func TestDecodeBatch_AcceptsBareAndWrapped(t *testing.T) {
	wrapped, err := DecodeBatch([]byte(sampleWebhook))
	require.NoError(t, err)
	assert.Equal(t, "N_1", wrapped.NetworkID)

	bare, err := DecodeBatch([]byte(`{"networkId": "N_2", "reportingAps": [], "observations": []}`))
	require.NoError(t, err)
	assert.Equal(t, "N_2", bare.NetworkID)

	_, err = DecodeBatch([]byte(`{"reportingAps": []}`))
	assert.ErrorIs(t, err, ErrMalformedBatch)
}

func TestValidateBatch_Nil(t *testing.T) {
	assert.ErrorIs(t, ValidateBatch(nil), ErrMalformedBatch)
}
