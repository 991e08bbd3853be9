package cosmopolite

import (
	"encoding/json"
	"fmt"
)

// wireCommand is one entry in the request envelope's commands array.
type wireCommand struct {
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments"`
}

// wireRequest is the top-level request envelope (spec.md §6).
type wireRequest struct {
	ClientID   string        `json:"client_id"`
	InstanceID string        `json:"instance_id"`
	Commands   []wireCommand `json:"commands"`
}

type pollArguments struct {
	Ack []string `json:"ack"`
}

type subscribeArguments struct {
	Subject     Subject `json:"subject"`
	NumMessages *int    `json:"messages,omitempty"`
	LastID      *int64  `json:"last_id,omitempty"`
}

type unsubscribeArguments struct {
	Subject Subject `json:"subject"`
}

type sendMessageArguments struct {
	Subject         Subject `json:"subject"`
	Message         string  `json:"message"`
	SenderMessageID string  `json:"sender_message_id"`
}

// wireMessage is the enriched message object echoed in a sendMessage
// response, and the shape of a "message" event's payload.
type wireMessage struct {
	Subject         Subject `json:"subject"`
	ID              int64   `json:"id"`
	Message         string  `json:"message"`
	EventID         string  `json:"event_id,omitempty"`
	SenderMessageID string  `json:"sender_message_id,omitempty"`
}

// wireResponse is one entry in the response envelope's responses array,
// positionally matched to the request's commands array.
type wireResponse struct {
	Result             string          `json:"result"`
	InstanceGeneration json.RawMessage `json:"instance_generation,omitempty"`
	Message            *wireMessage    `json:"message,omitempty"`
}

// wireEvent is one entry in the response envelope's events array.
type wireEvent struct {
	EventType string   `json:"event_type"`
	EventID   string   `json:"event_id,omitempty"`
	Subject   *Subject `json:"subject,omitempty"`
	ID        int64    `json:"id,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// wireEnvelope is the top-level response envelope.
type wireEnvelope struct {
	Profile   json.RawMessage `json:"profile"`
	Responses []wireResponse  `json:"responses"`
	Events    []wireEvent     `json:"events"`
}

// buildEnvelope serializes one cycle's request: a poll command carrying
// ack, followed by cmds in order.
func buildEnvelope(clientID, instanceID string, ack []string, cmds []*command) ([]byte, error) {
	if ack == nil {
		ack = []string{}
	}
	pollArgs, err := json.Marshal(pollArguments{Ack: ack})
	if err != nil {
		return nil, fmt.Errorf("cosmopolite: encode poll arguments: %w", err)
	}

	wireCmds := make([]wireCommand, 0, len(cmds)+1)
	wireCmds = append(wireCmds, wireCommand{Command: "poll", Arguments: pollArgs})

	for _, c := range cmds {
		args, err := buildCommandArguments(c)
		if err != nil {
			return nil, err
		}
		wireCmds = append(wireCmds, wireCommand{Command: c.name, Arguments: args})
	}

	req := wireRequest{
		ClientID:   clientID,
		InstanceID: instanceID,
		Commands:   wireCmds,
	}
	return json.Marshal(req)
}

func buildCommandArguments(c *command) (json.RawMessage, error) {
	switch c.name {
	case "subscribe":
		return json.Marshal(subscribeArguments{
			Subject:     c.subject,
			NumMessages: c.numMessages,
			LastID:      c.lastID,
		})
	case "unsubscribe":
		return json.Marshal(unsubscribeArguments{Subject: c.subject})
	case "sendMessage":
		return json.Marshal(sendMessageArguments{
			Subject:         c.subject,
			Message:         c.messagePayload,
			SenderMessageID: c.senderMessageID,
		})
	default:
		return nil, fmt.Errorf("cosmopolite: unknown command type %q", c.name)
	}
}

// parseEnvelope decodes and shape-validates a response body. wantCommands
// is the number of commands sent in the request, including the leading
// poll — the response's responses array must have exactly that length.
func parseEnvelope(body []byte, wantCommands int) (*wireEnvelope, error) {
	var env wireEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &MalformedEnvelopeError{Reason: err.Error()}
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return nil, &MalformedEnvelopeError{Reason: err.Error()}
	}
	for _, k := range []string{"profile", "responses", "events"} {
		if _, ok := keys[k]; !ok {
			return nil, &MalformedEnvelopeError{Reason: fmt.Sprintf("missing %q", k)}
		}
	}
	if env.Responses == nil {
		return nil, &MalformedEnvelopeError{Reason: "missing or non-array \"responses\""}
	}
	if len(env.Responses) != wantCommands {
		return nil, &MalformedEnvelopeError{
			Reason: fmt.Sprintf("responses length %d does not match %d commands sent", len(env.Responses), wantCommands),
		}
	}
	return &env, nil
}
