package event

import (
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// Auth holds the broker credentials. A zero value connects without SASL.
type Auth struct {
	Username string
	Password string
}

func (a Auth) mechanism() sasl.Mechanism {
	if a.Password == "" {
		return nil
	}
	return plain.Mechanism{Username: a.Username, Password: a.Password}
}

func (a Auth) dialer() *kafka.Dialer {
	d := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	if m := a.mechanism(); m != nil {
		d.SASLMechanism = m
	}
	return d
}

func (a Auth) transport() *kafka.Transport {
	t := &kafka.Transport{}
	if m := a.mechanism(); m != nil {
		t.SASL = m
	}
	return t
}
