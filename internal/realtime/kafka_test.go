package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"livechat-backend/internal/dto"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaMirrorCopiesFeedEventsOnce(t *testing.T) {
	config := NewKafkaConfig()
	producer := mocks.NewSyncProducer(t, config)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event dto.Event
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.SessionID != "s1" || event.Type != dto.EventMessageInserted {
			return errors.New("unexpected mirrored event")
		}
		return nil
	})

	inner := NewMemoryBroker()
	mirror := NewKafkaMirrorWithProducer(inner, producer, "chat-events")
	defer mirror.Close()

	var rec recorder
	sub, err := mirror.Subscribe(context.Background(), SessionChannel("s1"), rec.handle)
	require.NoError(t, err)
	defer sub.Close()

	event := inserted("s1", "m1")
	require.NoError(t, mirror.Publish(context.Background(), SessionChannel("s1"), event))
	require.NoError(t, mirror.Publish(context.Background(), SessionsChannel, event))

	events := rec.waitFor(t, 1)
	assert.Equal(t, "m1", events[0].Message.ID)
}

func TestKafkaMirrorFailureDoesNotFailPublish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewKafkaConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	mirror := NewKafkaMirrorWithProducer(NewMemoryBroker(), producer, "chat-events")
	defer mirror.Close()

	err := mirror.Publish(context.Background(), SessionsChannel, inserted("s1", "m1"))
	assert.NoError(t, err)
}
