package bridge

import "encoding/json"

// BindAddress is the agent address the bridge binds to on every connection
const BindAddress = 256

// registrationKeys are the agent event keys the bridge asks to receive
var registrationKeys = []string{"auto.report", "auto.forward", "lanbox.event"}

type bindRequest struct {
	Address int    `json:"address"`
	Method  string `json:"method"`
}

type registerRequest struct {
	Key    string `json:"key"`
	Method string `json:"method"`
}

var registrationMessages = buildRegistrationMessages()

// RegistrationMessages returns the datagrams sent, in order, after every
// successful connection to the agent socket
func RegistrationMessages() [][]byte {
	out := make([][]byte, len(registrationMessages))
	for i, msg := range registrationMessages {
		out[i] = append([]byte(nil), msg...)
	}
	return out
}

func buildRegistrationMessages() [][]byte {
	msgs := [][]byte{mustMarshal(bindRequest{Address: BindAddress, Method: "bind"})}
	for _, key := range registrationKeys {
		msgs = append(msgs, mustMarshal(registerRequest{Key: key, Method: "register"}))
	}
	return msgs
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
