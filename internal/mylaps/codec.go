package mylaps

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/racemap/mylaps-forwarder/internal/models"
	"github.com/rs/zerolog"
)

// ChipIDPrefix marks transponder ids as MyLaps chips on the Racemap side.
const ChipIDPrefix = "MyLaps_"

// LegacyPassingMinLength is the shortest Store record that carries id, time and date.
const LegacyPassingMinLength = 38

const (
	passingTimeLayout   = "060102 15:04:05"
	readTimestampLayout = "2006-01-02T15:04:05.000Z"
)

var (
	// ErrMissingFields is returned when a record lacks one of its required keys.
	ErrMissingFields = errors.New("mylaps: record is missing required fields")
	// ErrInvalidTimestamp is returned when date and time do not form a valid instant.
	ErrInvalidTimestamp = errors.New("mylaps: invalid passing timestamp")
)

// Passing holds the decoded key=value pairs of one modern passing record.
type Passing struct {
	ChipCode         *string
	ChipType         *string
	Date             *string
	LapNumber        *string
	DeviceNumber     *string
	ReaderNumber     *string
	AntennaNumber    *string
	GroupID          *string
	BibNumber        *string
	BibText          *string
	Time             *string
	UnixTime         *string
	UtcTime          *string
	HitCount         *string
	TimeSource       *string
	BatchID          *string
	Amplitude        *string
	AmplitudeDbm     *string
	MacAddress       *string
	StrongestAntenna *string
	AverageAntenna   *string

	// Extra keeps pairs whose key is not in the passing table, keyed as received.
	Extra map[string]string
}

// Marker is an event marker such as a gunshot trigger.
type Marker struct {
	Type string
	Time string
	Name string
}

var passingKeys = map[string]string{
	"c":   "chipCode",
	"ct":  "chipType",
	"d":   "date",
	"l":   "lapNumber",
	"dv":  "deviceNumber",
	"re":  "readerNumber",
	"an":  "antennaNumber",
	"g":   "groupId",
	"b":   "bibNumber",
	"n":   "bibText",
	"t":   "time",
	"ut":  "unixTime",
	"utc": "utcTime",
	"h":   "hitCount",
	"ts":  "timeSource",
	"bid": "batchId",
	"am":  "amplitude",
	"amd": "amplitudeDbm",
	"dm":  "macAddress",
	"ans": "strongestAntenna",
	"ana": "averageAntenna",
}

var deviceKeys = map[string]string{
	"id":    "deviceId",
	"n":     "deviceName",
	"mac":   "deviceMac",
	"ant":   "antennaCount",
	"dt":    "deviceType",
	"nr":    "deviceNumber",
	"bat":   "batteryLevel",
	"tbsc":  "timeBetweenSameChip",
	"prof":  "profile",
	"fwv":   "firmwareVersion",
	"bvol":  "beeperVolume",
	"btyp":  "beepType",
	"cont":  "continuousMode",
	"gho":   "gunHoldoff",
	"ex1ho": "ext1Holdoff",
	"ex2ho": "ext2Holdoff",
	"temp":  "temperature",
	"dst":   "daylightSavingsTime",
	"gpsc":  "gPSSatelliteCount",
	"gpsx":  "gPSLongitude",
	"gpsy":  "gPSLatitude",
	"tz":    "timezone",
}

var markerKeys = map[string]string{
	"mt": "markerType",
	"t":  "time",
	"n":  "name",
}

// PassingKeyToName maps a short passing key to its canonical name.
func PassingKeyToName(key string) (string, bool) {
	name, ok := passingKeys[key]
	return name, ok
}

// DeviceKeyToName maps a short device key to its canonical name.
func DeviceKeyToName(key string) (string, bool) {
	name, ok := deviceKeys[key]
	return name, ok
}

// PrefixChipID prepends ChipIDPrefix unless the id already carries it.
func PrefixChipID(id string) string {
	if strings.HasPrefix(id, ChipIDPrefix) {
		return id
	}
	return ChipIDPrefix + id
}

// FormatPassingTimestamp combines a YYMMDD date and a hh:mm:ss.SSS time of day,
// both in UTC, into the ISO-8601 instant used by TimingRead.
func FormatPassingTimestamp(date, timeOfDay string) (string, error) {
	t, err := time.ParseInLocation(passingTimeLayout, date+" "+timeOfDay, time.UTC)
	if err != nil {
		return "", fmt.Errorf("%w: %q %q: %v", ErrInvalidTimestamp, date, timeOfDay, err)
	}
	return t.UTC().Format(readTimestampLayout), nil
}

// Decoder turns record fields into canonical structures. It is stateless apart
// from the logger used to report unknown keys and is safe for concurrent use.
type Decoder struct {
	logger zerolog.Logger
}

// NewDecoder creates a Decoder that reports unknown keys to logger.
func NewDecoder(logger zerolog.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// mapRecord resolves the short keys of a record through table. Unknown keys
// are logged and kept unmapped.
func (d *Decoder) mapRecord(kind, record string, table map[string]string) map[string]string {
	named := make(map[string]string)
	for _, pair := range SplitRecord(record) {
		name, ok := table[pair[0]]
		if !ok {
			d.logger.Warn().Str("record", kind).Str("key", pair[0]).Msg("Unknown key")
			name = pair[0]
		}
		named[name] = pair[1]
	}
	return named
}

// DecodePassing decodes a modern passing record such as
// t=13:11:30.904|c=0000041|ct=UH|d=120606|l=13|dv=4|re=0|an=00001111|g=0|b=41|n=41
func (d *Decoder) DecodePassing(record string) (Passing, error) {
	p := Passing{}
	for name, value := range d.mapRecord("passing", record, passingKeys) {
		v := value
		switch name {
		case "chipCode":
			p.ChipCode = &v
		case "chipType":
			p.ChipType = &v
		case "date":
			p.Date = &v
		case "lapNumber":
			p.LapNumber = &v
		case "deviceNumber":
			p.DeviceNumber = &v
		case "readerNumber":
			p.ReaderNumber = &v
		case "antennaNumber":
			p.AntennaNumber = &v
		case "groupId":
			p.GroupID = &v
		case "bibNumber":
			p.BibNumber = &v
		case "bibText":
			p.BibText = &v
		case "time":
			p.Time = &v
		case "unixTime":
			p.UnixTime = &v
		case "utcTime":
			p.UtcTime = &v
		case "hitCount":
			p.HitCount = &v
		case "timeSource":
			p.TimeSource = &v
		case "batchId":
			p.BatchID = &v
		case "amplitude":
			p.Amplitude = &v
		case "amplitudeDbm":
			p.AmplitudeDbm = &v
		case "macAddress":
			p.MacAddress = &v
		case "strongestAntenna":
			p.StrongestAntenna = &v
		case "averageAntenna":
			p.AverageAntenna = &v
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]string)
			}
			p.Extra[name] = v
		}
	}

	var missing []string
	if p.ChipCode == nil {
		missing = append(missing, "chipCode")
	}
	if p.Time == nil {
		missing = append(missing, "time")
	}
	if p.Date == nil {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return p, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}
	return p, nil
}

// PassingToRead decodes a modern passing record into a TimingRead.
func (d *Decoder) PassingToRead(timingID, timingName, record string) (models.TimingRead, error) {
	p, err := d.DecodePassing(record)
	if err != nil {
		return models.TimingRead{}, err
	}
	timestamp, err := FormatPassingTimestamp(*p.Date, *p.Time)
	if err != nil {
		return models.TimingRead{}, err
	}
	return models.TimingRead{
		Timestamp:  timestamp,
		ChipID:     PrefixChipID(*p.ChipCode),
		TimingID:   timingID,
		TimingName: timingName,
	}, nil
}

// LegacyPassingToRead decodes one fixed-width Store record:
//
//	KV8658316:13:57.417 3 0F  1000025030870
//	|      |                      |     |> checksum
//	|      |> time                |> date (YYMMDD)
//	|> transponder id
//
// Records shorter than LegacyPassingMinLength yield false.
func (d *Decoder) LegacyPassingToRead(timingName, record string) (models.TimingRead, bool) {
	n := len(record)
	if n < LegacyPassingMinLength {
		return models.TimingRead{}, false
	}
	chip := record[0:7]
	timeOfDay := record[7:19]
	date := record[n-8 : n-2]

	timestamp, err := FormatPassingTimestamp(date, timeOfDay)
	if err != nil {
		d.logger.Warn().Err(err).Str("record", record).Msg("Legacy passing with invalid timestamp")
		return models.TimingRead{}, false
	}
	return models.TimingRead{
		Timestamp:  timestamp,
		ChipID:     PrefixChipID(chip),
		TimingID:   timingName,
		TimingName: timingName,
	}, true
}

// DecodeDevice decodes a modern AckGetInfo device record such as
// id=20250558687|n=BibTagDecoder00DF|mac=0004B70700DF|ant=2
// The record is accepted only if it names deviceId, deviceName and deviceMac.
func (d *Decoder) DecodeDevice(record string) (models.Device, error) {
	dev := models.Device{}
	for name, value := range d.mapRecord("device", record, deviceKeys) {
		v := value
		switch name {
		case "deviceId":
			dev.DeviceID = &v
		case "deviceName":
			dev.DeviceName = &v
		case "deviceMac":
			dev.DeviceMac = &v
		case "antennaCount":
			dev.AntennaCount = &v
		case "deviceType":
			dev.DeviceType = &v
		case "deviceNumber":
			dev.DeviceNumber = &v
		case "batteryLevel":
			dev.BatteryLevel = &v
		case "timeBetweenSameChip":
			dev.TimeBetweenSameChip = &v
		case "profile":
			dev.Profile = &v
		case "firmwareVersion":
			dev.FirmwareVersion = &v
		case "beeperVolume":
			dev.BeeperVolume = &v
		case "beepType":
			dev.BeepType = &v
		case "continuousMode":
			dev.ContinuousMode = &v
		case "gunHoldoff":
			dev.GunHoldoff = &v
		case "ext1Holdoff":
			dev.Ext1Holdoff = &v
		case "ext2Holdoff":
			dev.Ext2Holdoff = &v
		case "temperature":
			dev.Temperature = &v
		case "daylightSavingsTime":
			dev.DaylightSavingsTime = &v
		case "gPSSatelliteCount":
			dev.GPSSatelliteCount = &v
		case "gPSLongitude":
			dev.GPSLongitude = &v
		case "gPSLatitude":
			dev.GPSLatitude = &v
		case "timezone":
			dev.Timezone = &v
		}
	}

	var missing []string
	if dev.DeviceID == nil {
		missing = append(missing, "deviceId")
	}
	if dev.DeviceName == nil {
		missing = append(missing, "deviceName")
	}
	if dev.DeviceMac == nil {
		missing = append(missing, "deviceMac")
	}
	if len(missing) > 0 {
		return dev, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}
	return dev, nil
}

// DecodeMarker decodes a marker record such as mt=Gunshot|t=11:03:40.347|n=Gunshot 1
func (d *Decoder) DecodeMarker(record string) (Marker, error) {
	named := d.mapRecord("marker", record, markerKeys)
	m := Marker{
		Type: named["markerType"],
		Time: named["time"],
		Name: named["name"],
	}
	if m.Type == "" || m.Time == "" {
		return m, fmt.Errorf("%w: markerType, time", ErrMissingFields)
	}
	return m, nil
}
