package mylaps

import (
	"strings"
)

// Wire separators of the MyLaps TCP/IP protocol.
const (
	FrameTerminator   = "$" // ends every frame
	FieldSeparator    = "@" // separates fields within a frame
	RecordSeparator   = "|" // separates key=value pairs within a compound field
	KeyValueSeparator = "="
)

// LocationNameKey is the key of a location entry in a GetLocations reply: ln=Start
const LocationNameKey = "ln"

// LegacyDeviceMarker is the literal field 3 of a version 1 AckGetInfo frame.
const LegacyDeviceMarker = "Unknown"

// Function is a MyLaps function code decoded from field 1 of a frame.
type Function int

const (
	FunctionUnknown Function = iota
	FunctionPong
	FunctionPing
	FunctionStore
	FunctionAckPing
	FunctionAckPong
	FunctionGetInfo
	FunctionPassing
	FunctionAckPassing
	FunctionAckGetInfo
	FunctionGetLocations
	FunctionAckStore
	FunctionMarker
	FunctionAckMarker
)

var functionNames = map[Function]string{
	FunctionPong:         "Pong",
	FunctionPing:         "Ping",
	FunctionStore:        "Store",
	FunctionAckPing:      "AckPing",
	FunctionAckPong:      "AckPong",
	FunctionGetInfo:      "GetInfo",
	FunctionPassing:      "Passing",
	FunctionAckPassing:   "AckPassing",
	FunctionAckGetInfo:   "AckGetInfo",
	FunctionGetLocations: "GetLocations",
	FunctionAckStore:     "AckStore",
	FunctionMarker:       "Marker",
	FunctionAckMarker:    "AckMarker",
}

var functionsByName = func() map[string]Function {
	m := make(map[string]Function, len(functionNames))
	for fn, name := range functionNames {
		m[name] = fn
	}
	return m
}()

// ParseFunction maps a literal function code to its Function. Codes are case-sensitive.
func ParseFunction(code string) Function {
	if fn, ok := functionsByName[code]; ok {
		return fn
	}
	return FunctionUnknown
}

// String returns the wire literal of the function code.
func (f Function) String() string {
	if name, ok := functionNames[f]; ok {
		return name
	}
	return "Unknown"
}

// Message is one frame split into its fields.
//
// Clients terminate the last field with a separator too, so a frame like
// "Start@Pong@" splits into three fields with an empty trailing one.
// Message is one frame split into its fields.
type Message struct {
	Raw      string
	Fields   []string
	Function Function
}

// ParseMessage splits a raw frame on the field separator and decodes the function code.
func ParseMessage(frame []byte) Message {
	raw := string(frame)
	fields := strings.Split(raw, FieldSeparator)
	msg := Message{Raw: raw, Fields: fields}
	if len(fields) > 1 {
		msg.Function = ParseFunction(fields[1])
	}
	return msg
}

// Len returns the number of fields.
func (m Message) Len() int {
	return len(m.Fields)
}

// Field returns field i or an empty string when the frame is too short.
func (m Message) Field(i int) string {
	if i < 0 || i >= len(m.Fields) {
		return ""
	}
	return m.Fields[i]
}

// FunctionCode returns the raw function field, which is useful for logging unknown codes.
func (m Message) FunctionCode() string {
	return m.Field(1)
}

// EncodeFields renders fields as a frame payload: every field followed by a
// separator, without the frame terminator.
func EncodeFields(fields ...string) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f)
		b.WriteString(FieldSeparator)
	}
	return b.String()
}

// SplitRecord splits a compound field into key/value pairs in wire order.
// Entries without a separator keep an empty value.
func SplitRecord(record string) [][2]string {
	entries := strings.Split(record, RecordSeparator)
	pairs := make([][2]string, 0, len(entries))
	for _, entry := range entries {
		if entry == "" {
			continue
		}
		key, value, _ := strings.Cut(entry, KeyValueSeparator)
		pairs = append(pairs, [2]string{key, value})
	}
	return pairs
}
