package deadletter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"articlepipe/internal/domain"
	"articlepipe/internal/logging"
)

type recordingPublisher struct {
	topic string
	body  []byte
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.body = body
	return nil
}

func suffix(topic string) string { return topic + ".dead-letter" }

func TestTransportRoute_Send(t *testing.T) {
	pub := &recordingPublisher{}
	route := NewTransportRoute(pub, suffix, logging.Discard())

	letter := domain.NewDeadLetter("scraped_articles", domain.ReasonMalformedPayload, []byte("{bad"), 1, errors.New("invalid json"))
	require.NoError(t, route.Send(context.Background(), letter))

	assert.Equal(t, "scraped_articles.dead-letter", pub.topic)

	decoded, err := Decode(pub.body)
	require.NoError(t, err)
	assert.Equal(t, letter.ID, decoded.ID)
	assert.Equal(t, domain.ReasonMalformedPayload, decoded.Reason)
	assert.Equal(t, "{bad", decoded.Payload)
	assert.Equal(t, "invalid json", decoded.Error)
}

func TestTransportRoute_SendPublishError(t *testing.T) {
	route := NewTransportRoute(&recordingPublisher{err: errors.New("broker down")}, suffix, logging.Discard())

	err := route.Send(context.Background(), domain.NewDeadLetter("t", domain.ReasonPersistExhausted, nil, 5, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte("nope"))
	assert.Error(t, err)
}
