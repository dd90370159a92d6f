package models

// Device is a MyLaps decoder as reported by AckGetInfo. All fields are optional
// because the hardware reports them piecemeal.
type Device struct {
	DeviceID            *string `json:"deviceId,omitempty"`
	DeviceName          *string `json:"deviceName,omitempty"`
	DeviceType          *string `json:"deviceType,omitempty"`
	DeviceNumber        *string `json:"deviceNumber,omitempty"`
	DeviceMac           *string `json:"deviceMac,omitempty"`
	BatteryLevel        *string `json:"batteryLevel,omitempty"`
	TimeBetweenSameChip *string `json:"timeBetweenSameChip,omitempty"`
	Profile             *string `json:"profile,omitempty"`
	AntennaCount        *string `json:"antennaCount,omitempty"`
	FirmwareVersion     *string `json:"firmwareVersion,omitempty"`
	BeeperVolume        *string `json:"beeperVolume,omitempty"`
	BeepType            *string `json:"beepType,omitempty"`
	ContinuousMode      *string `json:"continuousMode,omitempty"`
	GunHoldoff          *string `json:"gunHoldoff,omitempty"`
	Ext1Holdoff         *string `json:"ext1Holdoff,omitempty"`
	Ext2Holdoff         *string `json:"ext2Holdoff,omitempty"`
	Temperature         *string `json:"temperature,omitempty"`
	DaylightSavingsTime *string `json:"daylightSavingsTime,omitempty"`
	GPSSatelliteCount   *string `json:"gPSSatelliteCount,omitempty"`
	GPSLongitude        *string `json:"gPSLongitude,omitempty"`
	GPSLatitude         *string `json:"gPSLatitude,omitempty"`
	Timezone            *string `json:"timezone,omitempty"`
}

// Merge returns a copy of d where every field present in update overrides the
// current value. Fields absent from update keep their previous value.
func (d Device) Merge(update Device) Device {
	merged := d
	pick(&merged.DeviceID, update.DeviceID)
	pick(&merged.DeviceName, update.DeviceName)
	pick(&merged.DeviceType, update.DeviceType)
	pick(&merged.DeviceNumber, update.DeviceNumber)
	pick(&merged.DeviceMac, update.DeviceMac)
	pick(&merged.BatteryLevel, update.BatteryLevel)
	pick(&merged.TimeBetweenSameChip, update.TimeBetweenSameChip)
	pick(&merged.Profile, update.Profile)
	pick(&merged.AntennaCount, update.AntennaCount)
	pick(&merged.FirmwareVersion, update.FirmwareVersion)
	pick(&merged.BeeperVolume, update.BeeperVolume)
	pick(&merged.BeepType, update.BeepType)
	pick(&merged.ContinuousMode, update.ContinuousMode)
	pick(&merged.GunHoldoff, update.GunHoldoff)
	pick(&merged.Ext1Holdoff, update.Ext1Holdoff)
	pick(&merged.Ext2Holdoff, update.Ext2Holdoff)
	pick(&merged.Temperature, update.Temperature)
	pick(&merged.DaylightSavingsTime, update.DaylightSavingsTime)
	pick(&merged.GPSSatelliteCount, update.GPSSatelliteCount)
	pick(&merged.GPSLongitude, update.GPSLongitude)
	pick(&merged.GPSLatitude, update.GPSLatitude)
	pick(&merged.Timezone, update.Timezone)
	return merged
}

func pick(dst **string, src *string) {
	if src != nil {
		*dst = src
	}
}
