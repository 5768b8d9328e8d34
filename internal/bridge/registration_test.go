package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistrationMessages(t *testing.T) {
	want := []string{
		`{"address":256,"method":"bind"}`,
		`{"key":"auto.report","method":"register"}`,
		`{"key":"auto.forward","method":"register"}`,
		`{"key":"lanbox.event","method":"register"}`,
	}

	got := RegistrationMessages()
	assert.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i], string(got[i]), "message %d", i)
	}
}

func TestRegistrationMessagesReturnsCopy(t *testing.T) {
	got := RegistrationMessages()
	got[0][0] = 'X'

	assert.Equal(t, `{"address":256,"method":"bind"}`, string(RegistrationMessages()[0]))
}
