package policy

import (
	"encoding/json"
	"regexp"
)

var (
	emailPattern = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`(?:\+?\d[\d()\-\s.]{7,}\d)`)
)

// MaskPIIString redacts learner emails and phone numbers from free text
// before it is sent to the inference service or stored in job results.
func MaskPIIString(value string) string {
	masked := emailPattern.ReplaceAllString(value, "[email_redacted]")
	masked = phonePattern.ReplaceAllString(masked, "[phone_redacted]")
	return masked
}

// MaskPIIJSON applies the same redaction to every string value in a JSON
// document. Keys, numbers, and the document structure are left untouched;
// payloads that fail to parse come back unchanged.
func MaskPIIJSON(payload json.RawMessage) json.RawMessage {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return payload
	}
	masked, err := json.Marshal(maskValue(decoded))
	if err != nil {
		return payload
	}
	return masked
}

func maskValue(value any) any {
	switch typed := value.(type) {
	case string:
		return MaskPIIString(typed)
	case []any:
		for i := range typed {
			typed[i] = maskValue(typed[i])
		}
		return typed
	case map[string]any:
		for key := range typed {
			typed[key] = maskValue(typed[key])
		}
		return typed
	default:
		return value
	}
}
