package hub

import "encoding/json"

// Message types exchanged with the hub.
const (
	TypeHello               = "hello"
	TypeHeartbeat           = "heartbeat"
	TypeDeviceInfo          = "deviceInfo"
	TypePing                = "ping"
	TypePong                = "pong"
	TypeCheckForUpdates     = "checkForUpdates"
	TypeLaunchRemoteControl = "launchRemoteControl"
	TypeResult              = "result"
)

// Envelope frames every message on the socket.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Result acknowledges a hub command.
type Result struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func newEnvelope(typ, id string, payload any) (Envelope, error) {
	env := Envelope{Type: typ, ID: id}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}

func resultFor(err error) Result {
	if err != nil {
		return Result{OK: false, Error: err.Error()}
	}
	return Result{OK: true}
}
