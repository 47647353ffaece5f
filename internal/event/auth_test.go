package event

import (
	"testing"

	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth_ZeroValueHasNoSASL(t *testing.T) {
	var a Auth

	assert.Nil(t, a.mechanism())
	assert.Nil(t, a.dialer().SASLMechanism)
	assert.Nil(t, a.transport().SASL)
}

func TestAuth_PlainMechanism(t *testing.T) {
	a := Auth{Username: "rsvp-bot", Password: "token"}

	m, ok := a.mechanism().(plain.Mechanism)
	require.True(t, ok)
	assert.Equal(t, "PLAIN", m.Name())
	assert.Equal(t, "rsvp-bot", m.Username)
	assert.NotNil(t, a.dialer().SASLMechanism)
	assert.NotNil(t, a.transport().SASL)
}

func TestNewKafka_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaConsumer(nil, "chat-reactions", "group", Auth{})
	assert.Error(t, err)

	_, err = NewKafkaPublisher(nil, "chat-actions", Auth{})
	assert.Error(t, err)
}
