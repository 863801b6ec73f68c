package services

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
	"github.com/hftl-ims-research/wonder/internal/core/ports"
)

type brokerChannel struct {
	rtcIdentity string
	channel     ports.DataChannel
}

// DataBroker fans DataMessages between codecs and the physical data channels
// of a conversation. One broker serves one conversation; channels are added
// as peers come up and traffic is routed by codec id.
type DataBroker struct {
	logger *zap.SugaredLogger

	mu       sync.Mutex
	codecs   map[string]*Codec
	channels []brokerChannel
}

// NewDataBroker builds an empty broker.
func NewDataBroker(logger *zap.SugaredLogger) *DataBroker {
	return &DataBroker{
		logger: logger,
		codecs: make(map[string]*Codec),
	}
}

// AddCodec registers a codec so inbound frames carrying its id reach it.
func (b *DataBroker) AddCodec(codec *Codec) {
	b.mu.Lock()
	b.codecs[codec.ID()] = codec
	b.mu.Unlock()
}

// Codec returns the registered codec with the given id.
func (b *DataBroker) Codec(id string) (*Codec, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	codec, ok := b.codecs[id]
	return codec, ok
}

// CodecByType returns the first registered codec of the given flavor.
func (b *DataBroker) CodecByType(t domain.ResourceType) (*Codec, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, codec := range b.codecs {
		if codec.Type() == t {
			return codec, true
		}
	}
	return nil, false
}

// AddChannel binds a physical channel to the peer identity on its far end and
// starts routing its inbound frames.
func (b *DataBroker) AddChannel(rtcIdentity string, channel ports.DataChannel) {
	b.mu.Lock()
	b.channels = append(b.channels, brokerChannel{rtcIdentity: rtcIdentity, channel: channel})
	b.mu.Unlock()

	channel.OnMessage(func(payload []byte) {
		b.onFrame(payload)
	})
}

// RemoveChannel unbinds every channel to the given peer.
func (b *DataBroker) RemoveChannel(rtcIdentity string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.channels[:0]
	for _, ch := range b.channels {
		if ch.rtcIdentity == rtcIdentity {
			continue
		}
		kept = append(kept, ch)
	}
	b.channels = kept
}

// Send routes one frame out. An empty To broadcasts to every open channel;
// otherwise only the channel bound to the target identity is used.
func (b *DataBroker) Send(msg DataMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	b.mu.Lock()
	channels := make([]brokerChannel, len(b.channels))
	copy(channels, b.channels)
	b.mu.Unlock()

	sent := false
	for _, ch := range channels {
		if msg.To != "" && ch.rtcIdentity != msg.To {
			continue
		}
		if !ch.channel.Open() {
			continue
		}
		if err := ch.channel.Send(payload); err != nil {
			b.logger.Warnw("data channel send failed",
				"peer", ch.rtcIdentity, "codec", msg.CodecID, "error", err)
			continue
		}
		sent = true
	}
	if !sent {
		return domain.ErrChannelNotFound
	}
	return nil
}

func (b *DataBroker) onFrame(payload []byte) {
	var msg DataMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warnw("dropping malformed data frame", "error", err)
		return
	}

	b.mu.Lock()
	codec, ok := b.codecs[msg.CodecID]
	b.mu.Unlock()
	if !ok {
		b.logger.Warnw("dropping frame for unknown codec", "codec", msg.CodecID)
		return
	}
	codec.OnData(msg)
}
