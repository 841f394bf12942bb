package mq

import (
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBinder struct {
	bound []string
	fail  string
}

func (f *fakeBinder) QueueBind(_, key, _ string, _ bool, _ amqp.Table) error {
	if key == f.fail {
		return errors.New("access refused")
	}
	f.bound = append(f.bound, key)
	return nil
}

func TestBindKeysReportsFailingKeyVerbatim(t *testing.T) {
	b := &fakeBinder{fail: "booking.%d"}
	err := bindKeys(b, "q", "booking.exchange", []string{"payment.*", "booking.%d", "waitlist.*"})
	require.Error(t, err)
	assert.Equal(t, "bind booking.%d: access refused", err.Error())
	assert.Equal(t, []string{"payment.*"}, b.bound)
}

func TestBindKeysBindsAll(t *testing.T) {
	b := &fakeBinder{}
	require.NoError(t, bindKeys(b, "q", "x", []string{"a.*", "b.#"}))
	assert.Equal(t, []string{"a.*", "b.#"}, b.bound)
}
