package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Envelope is the decoded head of a queue message body. Bodies are flat JSON
// objects: the payload fields plus "type" and "message_id".
type Envelope struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Body      []byte `json:"-"`
}

func Encode(msgType string, payload interface{}) ([]byte, error) {
	fields := map[string]interface{}{}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("queue payload must be a JSON object: %w", err)
		}
	}
	fields["type"] = msgType
	if _, ok := fields["message_id"]; !ok {
		fields["message_id"] = uuid.NewString()
	}
	return json.Marshal(fields)
}

func Decode(body []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(body, env); err != nil {
		return nil, fmt.Errorf("invalid queue message: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("queue message has no type")
	}
	env.Body = body
	return env, nil
}

// Payload decodes the envelope body into out.
func (e *Envelope) Payload(out interface{}) error {
	return json.Unmarshal(e.Body, out)
}
