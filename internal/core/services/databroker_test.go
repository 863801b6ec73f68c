package services

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
)

func TestBrokerBroadcastAndTargetedSend(t *testing.T) {
	broker := NewDataBroker(zaptest.NewLogger(t).Sugar())
	chat := NewCodec(domain.ResourceChat, broker)
	broker.AddCodec(chat)

	bobChannel := &fakeChannel{label: "wonder-data"}
	carolChannel := &fakeChannel{label: "wonder-data"}
	broker.AddChannel("bob@b.example", bobChannel)
	broker.AddChannel("carol@c.example", carolChannel)

	require.NoError(t, chat.Send("alice@a.example", "", "hello everyone"))
	assert.Len(t, bobChannel.payloads(), 1)
	assert.Len(t, carolChannel.payloads(), 1)

	require.NoError(t, chat.Send("alice@a.example", "bob@b.example", "just for bob"))
	assert.Len(t, bobChannel.payloads(), 2)
	assert.Len(t, carolChannel.payloads(), 1)
}

func TestBrokerSendWithoutChannel(t *testing.T) {
	broker := NewDataBroker(zaptest.NewLogger(t).Sugar())
	chat := NewCodec(domain.ResourceChat, broker)
	broker.AddCodec(chat)

	err := chat.Send("alice@a.example", "", "nobody listening")
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}

func TestBrokerRoutesInboundByCodecID(t *testing.T) {
	broker := NewDataBroker(zaptest.NewLogger(t).Sugar())
	chat := NewCodec(domain.ResourceChat, broker)
	file := NewCodec(domain.ResourceFile, broker)
	broker.AddCodec(chat)
	broker.AddCodec(file)

	var got []DataMessage
	chat.AddListener(func(msg DataMessage) { got = append(got, msg) })

	channel := &fakeChannel{label: "wonder-data"}
	broker.AddChannel("bob@b.example", channel)

	frame, _ := json.Marshal(DataMessage{
		CodecID: chat.ID(), From: "bob@b.example", Body: "hi", Last: true,
	})
	channel.inject(frame)

	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Body)
}

func TestFileCodecChunksLargePayloads(t *testing.T) {
	broker := NewDataBroker(zaptest.NewLogger(t).Sugar())
	file := NewCodec(domain.ResourceFile, broker)
	broker.AddCodec(file)

	channel := &fakeChannel{label: "wonder-data"}
	broker.AddChannel("bob@b.example", channel)

	payload := strings.Repeat("x", 2500)
	require.NoError(t, file.Send("alice@a.example", "bob@b.example", payload))

	frames := channel.payloads()
	require.Len(t, frames, 3)

	var last DataMessage
	for i, raw := range frames {
		var frame DataMessage
		require.NoError(t, json.Unmarshal(raw, &frame))
		if i < len(frames)-1 {
			assert.False(t, frame.Last, "only the final frame carries Last")
		}
		last = frame
	}
	assert.True(t, last.Last)
}

func TestFileCodecReassemblesChunks(t *testing.T) {
	broker := NewDataBroker(zaptest.NewLogger(t).Sugar())
	file := NewCodec(domain.ResourceFile, broker)
	broker.AddCodec(file)

	var delivered []DataMessage
	file.AddListener(func(msg DataMessage) { delivered = append(delivered, msg) })

	file.OnData(DataMessage{CodecID: file.ID(), From: "bob@b.example", Body: "aaa", Last: false})
	file.OnData(DataMessage{CodecID: file.ID(), From: "bob@b.example", Body: "bbb", Last: false})
	assert.Empty(t, delivered, "nothing delivers before the last chunk")

	file.OnData(DataMessage{CodecID: file.ID(), From: "bob@b.example", Body: "ccc", Last: true})
	require.Len(t, delivered, 1)
	assert.Equal(t, "aaabbbccc", delivered[0].Body)

	// assembly buffer resets: a following transfer starts from scratch
	file.OnData(DataMessage{CodecID: file.ID(), From: "bob@b.example", Body: "zzz", Last: true})
	require.Len(t, delivered, 2)
	assert.Equal(t, "zzz", delivered[1].Body)
}

func TestBrokerRemoveChannel(t *testing.T) {
	broker := NewDataBroker(zaptest.NewLogger(t).Sugar())
	chat := NewCodec(domain.ResourceChat, broker)
	broker.AddCodec(chat)

	channel := &fakeChannel{label: "wonder-data"}
	broker.AddChannel("bob@b.example", channel)
	broker.RemoveChannel("bob@b.example")

	err := chat.Send("alice@a.example", "", "gone")
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}
