package cosmopolite

import (
	"encoding/json"
	"testing"
)

func TestBuildEnvelope_PollIsAlwaysFirst(t *testing.T) {
	body, err := buildEnvelope("client-1", "instance-1", []string{"ev1", "ev2"}, nil)
	if err != nil {
		t.Fatalf("buildEnvelope returned error: %v", err)
	}

	var req wireRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if req.ClientID != "client-1" || req.InstanceID != "instance-1" {
		t.Errorf("req = %+v, want client-1/instance-1", req)
	}
	if len(req.Commands) != 1 || req.Commands[0].Command != "poll" {
		t.Fatalf("Commands = %+v, want a single poll command", req.Commands)
	}

	var pollArgs pollArguments
	if err := json.Unmarshal(req.Commands[0].Arguments, &pollArgs); err != nil {
		t.Fatalf("unmarshal poll arguments: %v", err)
	}
	if len(pollArgs.Ack) != 2 || pollArgs.Ack[0] != "ev1" || pollArgs.Ack[1] != "ev2" {
		t.Errorf("pollArgs.Ack = %v, want [ev1 ev2]", pollArgs.Ack)
	}
}

func TestBuildEnvelope_NilAckBecomesEmptyArray(t *testing.T) {
	body, err := buildEnvelope("c", "i", nil, nil)
	if err != nil {
		t.Fatalf("buildEnvelope returned error: %v", err)
	}

	var req wireRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := string(req.Commands[0].Arguments); got != `{"ack":[]}` {
		t.Errorf("poll arguments = %s, want ack to marshal as an empty array, not null", got)
	}
}

func TestBuildEnvelope_CommandOrderPreserved(t *testing.T) {
	cmds := []*command{
		{name: "subscribe", subject: Subject{Name: "a"}},
		{name: "sendMessage", subject: Subject{Name: "b"}, messagePayload: `"hi"`, senderMessageID: "id-1"},
		{name: "unsubscribe", subject: Subject{Name: "c"}},
	}
	body, err := buildEnvelope("c", "i", nil, cmds)
	if err != nil {
		t.Fatalf("buildEnvelope returned error: %v", err)
	}

	var req wireRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := []string{"poll", "subscribe", "sendMessage", "unsubscribe"}
	if len(req.Commands) != len(want) {
		t.Fatalf("len(Commands) = %d, want %d", len(req.Commands), len(want))
	}
	for i, w := range want {
		if req.Commands[i].Command != w {
			t.Errorf("Commands[%d] = %q, want %q", i, req.Commands[i].Command, w)
		}
	}
}

func TestBuildEnvelope_UnknownCommandErrors(t *testing.T) {
	_, err := buildEnvelope("c", "i", nil, []*command{{name: "bogus"}})
	if err == nil {
		t.Fatal("expected an error for an unknown command type")
	}
}

func TestParseEnvelope_MissingResponses(t *testing.T) {
	_, err := parseEnvelope([]byte(`{"profile":null,"events":[]}`), 1)
	if _, ok := err.(*MalformedEnvelopeError); !ok {
		t.Fatalf("err = %v (%T), want *MalformedEnvelopeError", err, err)
	}
}

func TestParseEnvelope_LengthMismatch(t *testing.T) {
	_, err := parseEnvelope([]byte(`{"profile":null,"responses":[{"result":"ok"}],"events":[]}`), 2)
	if _, ok := err.(*MalformedEnvelopeError); !ok {
		t.Fatalf("err = %v (%T), want *MalformedEnvelopeError", err, err)
	}
}

func TestParseEnvelope_InvalidJSON(t *testing.T) {
	_, err := parseEnvelope([]byte(`not json`), 1)
	if _, ok := err.(*MalformedEnvelopeError); !ok {
		t.Fatalf("err = %v (%T), want *MalformedEnvelopeError", err, err)
	}
}

func TestParseEnvelope_WellFormed(t *testing.T) {
	raw := `{"profile":{"name":"alice"},"responses":[{"result":"ok","instance_generation":"gen-1"}],"events":[{"event_type":"login"}]}`
	env, err := parseEnvelope([]byte(raw), 1)
	if err != nil {
		t.Fatalf("parseEnvelope returned error: %v", err)
	}
	if len(env.Responses) != 1 || env.Responses[0].Result != "ok" {
		t.Errorf("Responses = %+v", env.Responses)
	}
	if len(env.Events) != 1 || env.Events[0].EventType != "login" {
		t.Errorf("Events = %+v", env.Events)
	}
}
