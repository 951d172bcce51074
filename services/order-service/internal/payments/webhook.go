package payments

import (
	"bytes"
	"encoding/json"
	"strings"

	"bakehouse-system/services/order-service/internal/domain"
)

// Notification is the strongly-typed result of parsing one provider
// event. Nothing loosely typed escapes this package boundary.
type Notification struct {
	PaymentID string
	Topic     string
}

// rawEvent covers the payload shapes the provider is known to send:
// an id nested under "data", an id at the top level, or an array of
// either. Ids arrive either as JSON strings or numbers.
type rawEvent struct {
	ID     json.RawMessage `json:"id"`
	Type   string          `json:"type"`
	Topic  string          `json:"topic"`
	Action string          `json:"action"`
	Data   *struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// ParseNotifications resolves a raw webhook body into typed
// notifications. At least one payment id must be found or the payload
// is rejected as unrecognized.
func ParseNotifications(body []byte) ([]Notification, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, domain.ErrPayloadUnrecognized
	}

	var events []rawEvent
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, domain.ErrPayloadUnrecognized
		}
	} else {
		var ev rawEvent
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			return nil, domain.ErrPayloadUnrecognized
		}
		events = []rawEvent{ev}
	}

	var out []Notification
	for _, ev := range events {
		id := ""
		if ev.Data != nil {
			id = decodeID(ev.Data.ID)
		}
		if id == "" {
			id = decodeID(ev.ID)
		}
		if id == "" {
			continue
		}
		out = append(out, Notification{PaymentID: id, Topic: eventTopic(ev)})
	}
	if len(out) == 0 {
		return nil, domain.ErrPayloadUnrecognized
	}
	return out, nil
}

func eventTopic(ev rawEvent) string {
	switch {
	case ev.Topic != "":
		return ev.Topic
	case ev.Type != "":
		return ev.Type
	case ev.Action != "":
		return ev.Action
	default:
		return "payment"
	}
}

// decodeID accepts both "123" and 123 as a payment id.
func decodeID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if s[0] == '"' {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return ""
		}
		return v
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.String()
}
