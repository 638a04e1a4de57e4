package checkin

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Shape identifies which payload layout a presentation arrived in.
type Shape int

const (
	ShapeOpaque Shape = iota
	ShapeEventCode
	ShapeEventCodeCamel
	ShapeFreeEventCode
	ShapeIDCode
)

func (s Shape) String() string {
	switch s {
	case ShapeOpaque:
		return "opaque"
	case ShapeEventCode:
		return "event_id+verification_code"
	case ShapeEventCodeCamel:
		return "eventId+verificationCode"
	case ShapeFreeEventCode:
		return "freeEventId+code"
	case ShapeIDCode:
		return "id+code"
	}
	return "unknown"
}

// Presentation is a classified check-in payload. Opaque presentations
// carry Value; the structured shapes carry EventID and Code.
type Presentation struct {
	Shape   Shape
	Value   string
	EventID string
	Code    string
}

// structuredShapes is the compatibility table for object payloads, in
// precedence order. The first entry with both fields present wins.
var structuredShapes = []struct {
	shape    Shape
	eventKey string
	codeKey  string
}{
	{ShapeEventCode, "event_id", "verification_code"},
	{ShapeEventCodeCamel, "eventId", "verificationCode"},
	{ShapeFreeEventCode, "freeEventId", "code"},
	{ShapeIDCode, "id", "code"},
}

// ParsePresentation classifies a scanned or typed payload. A payload that
// is not a JSON object is an opaque credential string: raw QR text or a
// JSON string literal.
func ParsePresentation(payload []byte) (Presentation, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return Presentation{}, ErrInvalidCredential
	}

	switch trimmed[0] {
	case '{':
		return parseObject(trimmed)
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Presentation{}, ErrInvalidCredential
		}
		return opaque(s)
	default:
		return opaque(string(trimmed))
	}
}

func opaque(s string) (Presentation, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Presentation{}, ErrInvalidCredential
	}
	return Presentation{Shape: ShapeOpaque, Value: s}, nil
}

func parseObject(data []byte) (Presentation, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Presentation{}, ErrInvalidCredential
	}

	for _, s := range structuredShapes {
		eventID, ok := scalar(fields[s.eventKey])
		if !ok {
			continue
		}
		code, ok := scalar(fields[s.codeKey])
		if !ok {
			continue
		}
		return Presentation{Shape: s.shape, EventID: eventID, Code: code}, nil
	}
	return Presentation{}, ErrInvalidCredential
}

// scalar reads a non-empty string or number. Older clients sent numeric
// event ids.
func scalar(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
