package services

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
	apperrors "github.com/hftl-ims-research/wonder/pkg/errors"
)

// fileChunkSize bounds one data-channel frame for file transfer. Payloads
// above it are split and reassembled on the receiving side.
const fileChunkSize = 1000

// DataMessage is the frame multiplexed over a shared data channel. CodecID
// selects the receiving codec; Last marks the final chunk of a split payload.
type DataMessage struct {
	CodecID string `json:"codecId"`
	To      string `json:"to,omitempty"`
	From    string `json:"from,omitempty"`
	Body    string `json:"body"`
	Last    bool   `json:"last"`
}

// DataListener consumes reassembled payloads delivered to a codec.
type DataListener func(msg DataMessage)

// Codec is one logical data flavor (chat line, file transfer) multiplexed
// over the conversation's data channels. Codecs sharing a channel are told
// apart by ID.
type Codec struct {
	id        string
	codecType domain.ResourceType
	broker    *DataBroker

	mu        sync.Mutex
	listeners []DataListener
	// assembly accumulates chunked file bodies per sender until the Last
	// chunk arrives.
	assembly map[string]*strings.Builder
}

// NewCodec builds a codec of the given type with a fresh id.
func NewCodec(codecType domain.ResourceType, broker *DataBroker) *Codec {
	return newCodecWithID(uuid.NewString(), codecType, broker)
}

func newCodecWithID(id string, codecType domain.ResourceType, broker *DataBroker) *Codec {
	return &Codec{
		id:        id,
		codecType: codecType,
		broker:    broker,
		assembly:  make(map[string]*strings.Builder),
	}
}

// ID returns the codec's multiplexing id.
func (c *Codec) ID() string { return c.id }

// Type returns the resource flavor this codec carries.
func (c *Codec) Type() domain.ResourceType { return c.codecType }

// AddListener registers a payload consumer.
func (c *Codec) AddListener(listener DataListener) {
	if listener == nil {
		apperrors.AmbiguousUsage("Codec.AddListener requires a listener")
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, listener)
	c.mu.Unlock()
}

// Send transmits a payload. Chat lines go out as one frame; file payloads are
// chunked with only the final frame carrying Last.
func (c *Codec) Send(from, to, body string) error {
	if c.broker == nil {
		return domain.ErrChannelNotFound
	}
	if c.codecType != domain.ResourceFile || len(body) <= fileChunkSize {
		return c.broker.Send(DataMessage{CodecID: c.id, From: from, To: to, Body: body, Last: true})
	}

	for offset := 0; offset < len(body); offset += fileChunkSize {
		end := offset + fileChunkSize
		last := false
		if end >= len(body) {
			end = len(body)
			last = true
		}
		frame := DataMessage{CodecID: c.id, From: from, To: to, Body: body[offset:end], Last: last}
		if err := c.broker.Send(frame); err != nil {
			return err
		}
	}
	return nil
}

// OnData receives one inbound frame. Chat frames are delivered immediately;
// file chunks accumulate until the Last frame completes the payload, after
// which the assembly buffer for that sender is empty again.
func (c *Codec) OnData(msg DataMessage) {
	if c.codecType != domain.ResourceFile {
		c.deliver(msg)
		return
	}

	c.mu.Lock()
	buf, ok := c.assembly[msg.From]
	if !ok {
		buf = &strings.Builder{}
		c.assembly[msg.From] = buf
	}
	buf.WriteString(msg.Body)
	if !msg.Last {
		c.mu.Unlock()
		return
	}
	msg.Body = buf.String()
	delete(c.assembly, msg.From)
	c.mu.Unlock()

	c.deliver(msg)
}

func (c *Codec) deliver(msg DataMessage) {
	c.mu.Lock()
	listeners := make([]DataListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()
	for _, l := range listeners {
		l(msg)
	}
}
