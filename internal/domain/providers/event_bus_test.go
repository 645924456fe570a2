package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClinicIDFromChannel(t *testing.T) {
	id, ok := ClinicIDFromChannel(GetClinicChannel("c-42"))
	assert.True(t, ok)
	assert.Equal(t, "c-42", id)

	for _, channel := range []string{EventChannelAppointments, "clinic::appointments", "clinic:appointments", "clinic:c1", "c1:appointments"} {
		_, ok := ClinicIDFromChannel(channel)
		assert.False(t, ok, channel)
	}
}
