package services

import (
	"context"
	"sync"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
	"github.com/hftl-ims-research/wonder/internal/core/ports"
)

// fakeTransport records outbound traffic and lets tests inject inbound
// messages.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	connectAs string
	sent      []*domain.Message
	receiver  func(*domain.Message)
	sendErr   error
}

func (t *fakeTransport) Connect(_ context.Context, ownIdentity string, _ domain.Credentials) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	t.connectAs = ownIdentity
	return nil
}

func (t *fakeTransport) Send(msg *domain.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransport) SetReceiver(receive func(*domain.Message)) {
	t.mu.Lock()
	t.receiver = receive
	t.mu.Unlock()
}

func (t *fakeTransport) Disconnect() error {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) deliver(msg *domain.Message) {
	t.mu.Lock()
	receiver := t.receiver
	t.mu.Unlock()
	if receiver != nil {
		receiver(msg)
	}
}

func (t *fakeTransport) sentMessages() []*domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*domain.Message, len(t.sent))
	copy(out, t.sent)
	return out
}

// fakeFactory hands out transports by selector; selectors absent from the
// map stay unavailable so resolution polling can be exercised.
type fakeFactory struct {
	mu         sync.Mutex
	transports map[string]*fakeTransport
	requested  []string
}

func newFakeFactory(selectors ...string) *fakeFactory {
	f := &fakeFactory{transports: make(map[string]*fakeTransport)}
	for _, s := range selectors {
		f.transports[s] = &fakeTransport{}
	}
	return f
}

func (f *fakeFactory) Get(selector string) (ports.Transport, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	transport, ok := f.transports[selector]
	if !ok {
		return nil, false
	}
	return transport, true
}

func (f *fakeFactory) Request(selector string) {
	f.mu.Lock()
	f.requested = append(f.requested, selector)
	f.mu.Unlock()
}

func (f *fakeFactory) add(selector string) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	transport := &fakeTransport{}
	f.transports[selector] = transport
	return transport
}

func (f *fakeFactory) transport(selector string) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[selector]
}

// fakeDirectory serves canned directory records and counts lookups.
type fakeDirectory struct {
	mu      sync.Mutex
	records map[string][]domain.DirectoryRecord
	err     error
	lookups int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{records: make(map[string][]domain.DirectoryRecord)}
}

func (d *fakeDirectory) put(rtcIdentity, selector string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[rtcIdentity] = append(d.records[rtcIdentity], domain.DirectoryRecord{
		RtcIdentity:       rtcIdentity,
		TransportSelector: selector,
	})
}

func (d *fakeDirectory) Lookup(_ context.Context, rtcIdentity string) ([]domain.DirectoryRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	if d.err != nil {
		return nil, d.err
	}
	return d.records[rtcIdentity], nil
}

func (d *fakeDirectory) lookupCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookups
}

// fakeStream records whether Stop was called.
type fakeStream struct {
	id      string
	mu      sync.Mutex
	stopped bool
}

func (s *fakeStream) ID() string { return s.id }

func (s *fakeStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *fakeStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// fakeCapture returns one fake stream per call.
type fakeCapture struct {
	mu    sync.Mutex
	calls []domain.MediaConstraints
}

func (c *fakeCapture) GetUserMedia(constraints domain.MediaConstraints) (ports.MediaStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, constraints)
	return &fakeStream{id: "local-stream"}, nil
}

func (c *fakeCapture) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// fakeChannel is an always-open data channel capturing outbound payloads.
type fakeChannel struct {
	label string

	mu      sync.Mutex
	sent    [][]byte
	receive func([]byte)
	closed  bool
}

func (c *fakeChannel) Label() string { return c.label }
func (c *fakeChannel) Open() bool    { return true }

func (c *fakeChannel) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.sent = append(c.sent, buf)
	return nil
}

func (c *fakeChannel) OnMessage(receive func(payload []byte)) {
	c.mu.Lock()
	c.receive = receive
	c.mu.Unlock()
}

func (c *fakeChannel) OnOpen(fn func()) {
	if fn != nil {
		fn()
	}
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) inject(payload []byte) {
	c.mu.Lock()
	receive := c.receive
	c.mu.Unlock()
	if receive != nil {
		receive(payload)
	}
}

func (c *fakeChannel) payloads() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// fakeSession is a scripted media session.
type fakeSession struct {
	mu         sync.Mutex
	observer   ports.RTCEventHandler
	local      domain.SessionDescription
	remote     domain.SessionDescription
	candidates []domain.ICECandidate
	streams    []ports.MediaStream
	channel    *fakeChannel
	closed     bool
}

func (s *fakeSession) CreateOffer(context.Context) (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: "offer", SDP: "v=0 offer"}, nil
}

func (s *fakeSession) CreateAnswer(context.Context) (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: "answer", SDP: "v=0 answer"}, nil
}

func (s *fakeSession) SetLocalDescription(desc domain.SessionDescription) error {
	s.mu.Lock()
	s.local = desc
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) SetRemoteDescription(desc domain.SessionDescription) error {
	s.mu.Lock()
	s.remote = desc
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) LocalDescription() domain.SessionDescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

func (s *fakeSession) AddICECandidate(candidate domain.ICECandidate) error {
	s.mu.Lock()
	s.candidates = append(s.candidates, candidate)
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) AddStream(stream ports.MediaStream) error {
	s.mu.Lock()
	s.streams = append(s.streams, stream)
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) StreamByID(id string) (ports.MediaStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stream := range s.streams {
		if stream.ID() == id {
			return stream, true
		}
	}
	return nil, false
}

func (s *fakeSession) CreateDataChannel(label string) (ports.DataChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = &fakeChannel{label: label}
	return s.channel, nil
}

func (s *fakeSession) Observe(handler ports.RTCEventHandler) {
	s.mu.Lock()
	s.observer = handler
	s.mu.Unlock()
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) emit(event ports.RTCEvent) {
	s.mu.Lock()
	observer := s.observer
	s.mu.Unlock()
	if observer != nil {
		observer(event)
	}
}

func (s *fakeSession) remoteDescription() domain.SessionDescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// fakeEngine hands out fakeSessions in creation order.
type fakeEngine struct {
	mu       sync.Mutex
	sessions []*fakeSession
}

func (e *fakeEngine) CreateSession(ports.SessionConfig) (ports.MediaSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	session := &fakeSession{}
	e.sessions = append(e.sessions, session)
	return session, nil
}

func (e *fakeEngine) session(i int) *fakeSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i >= len(e.sessions) {
		return nil
	}
	return e.sessions[i]
}

// recordingListener collects dispatched messages.
type recordingListener struct {
	mu       sync.Mutex
	messages []*domain.Message
}

func (l *recordingListener) OnMessage(msg *domain.Message) {
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
}

func (l *recordingListener) received() []*domain.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*domain.Message, len(l.messages))
	copy(out, l.messages)
	return out
}
