package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

// TestDevice_Merge tests that present fields override and absent fields are preserved.
func TestDevice_Merge(t *testing.T) {
	old := Device{
		DeviceID:     strPtr("1"),
		DeviceName:   strPtr("Decoder"),
		BatteryLevel: strPtr("80"),
	}
	update := Device{
		DeviceName:   strPtr("Decoder"),
		BatteryLevel: strPtr("75"),
		Temperature:  strPtr("21"),
	}

	merged := old.Merge(update)

	assert.Equal(t, "1", *merged.DeviceID)
	assert.Equal(t, "75", *merged.BatteryLevel)
	assert.Equal(t, "21", *merged.Temperature)
	assert.Nil(t, merged.DeviceMac)
	assert.Equal(t, "80", *old.BatteryLevel, "merge must not mutate the receiver")
}

// TestLocation_MergeDevice tests create-or-update of devices keyed by name.
func TestLocation_MergeDevice(t *testing.T) {
	loc := NewLocation("Start", "", time.Time{})

	assert.False(t, loc.MergeDevice(Device{DeviceID: strPtr("1")}))
	assert.True(t, loc.MergeDevice(Device{DeviceName: strPtr("A"), DeviceMac: strPtr("mac")}))
	assert.True(t, loc.MergeDevice(Device{DeviceName: strPtr("A"), FirmwareVersion: strPtr("2.0")}))

	assert.Len(t, loc.DevicesByName, 1)
	assert.Equal(t, "mac", *loc.DevicesByName["A"].DeviceMac)
	assert.Equal(t, "2.0", *loc.DevicesByName["A"].FirmwareVersion)
}
