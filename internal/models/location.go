package models

import "time"

// Location is a timing point reported by the hardware, i.e. Start, 5K or Finish.
type Location struct {
	Name          string
	ComputerName  string
	LastSeen      time.Time
	DevicesByName map[string]Device
}

// NewLocation creates a location without devices.
func NewLocation(name, computerName string, seen time.Time) *Location {
	return &Location{
		Name:          name,
		ComputerName:  computerName,
		LastSeen:      seen,
		DevicesByName: make(map[string]Device),
	}
}

// MergeDevice creates or updates the device keyed by its name. Updates without
// a device name are ignored.
func (l *Location) MergeDevice(update Device) bool {
	if update.DeviceName == nil {
		return false
	}
	name := *update.DeviceName
	if existing, ok := l.DevicesByName[name]; ok {
		l.DevicesByName[name] = existing.Merge(update)
	} else {
		l.DevicesByName[name] = update
	}
	return true
}
