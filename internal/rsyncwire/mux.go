package rsyncwire

import (
	"fmt"
	"io"
	"time"
)

// MultiplexWriter is the simple, single-channel convenience multiplexer
// used once the session has switched to server-side multiplexed output:
// everything written through it becomes a MsgData frame on channel 0,
// and WriteMsg lets the caller emit any other tagged message (Info,
// Error, Stats, ...) interleaved on the same channel.
type MultiplexWriter struct {
	Writer io.Writer
}

func (w *MultiplexWriter) Write(p []byte) (int, error) {
	if err := WriteFrame(w.Writer, Frame{Channel: 0, Tag: uint8(MsgData), Payload: p}); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteMsg emits a single non-data message on channel 0.
func (w *MultiplexWriter) WriteMsg(tag Tag, payload []byte) error {
	return WriteFrame(w.Writer, Frame{Channel: 0, Tag: uint8(tag), Payload: payload})
}

// MultiplexReader presents the data-tagged frames of a multiplexed
// stream as a flat io.Reader, routing every other tag to OnMessage (if
// set) instead of the caller.
type MultiplexReader struct {
	Reader    io.Reader
	OnMessage func(Message)

	pending []byte
}

func (r *MultiplexReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		f, err := ReadFrame(r.Reader)
		if err != nil {
			return 0, err
		}
		if !ValidatePayload(Tag(f.Tag), f.Payload) {
			f.Tag = uint8(MsgErrorUtf8)
		}
		if Tag(f.Tag) == MsgData {
			r.pending = f.Payload
			continue
		}
		if r.OnMessage != nil {
			r.OnMessage(Message{Channel: f.Channel, Tag: Tag(f.Tag), Payload: f.Payload})
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// Multiplexer fans (channel, Message) pairs out onto frames on a shared
// byte stream.
type Multiplexer struct {
	w io.Writer
}

func NewMultiplexer(w io.Writer) *Multiplexer { return &Multiplexer{w: w} }

func (m *Multiplexer) Send(channel uint8, msg Message) error {
	return WriteFrame(m.w, Frame{Channel: channel, Tag: uint8(msg.Tag), Payload: msg.Payload})
}

// channelQueue is one logical channel's inbox state: a capped ring
// buffer of Info-class messages. Data frames are not queued per channel; Poll hands them out
// in transport-arrival order across all channels.
type channelQueue struct {
	infos []Message
	cap   int
}

func (q *channelQueue) pushInfo(m Message) {
	q.infos = append(q.infos, m)
	if len(q.infos) > q.cap {
		q.infos = q.infos[len(q.infos)-q.cap:]
	}
}

// Demultiplexer reads frames off a shared byte stream and routes them to
// per-channel queues.
type Demultiplexer struct {
	r        io.Reader
	channels map[uint8]*channelQueue
	infoCap  int
	order    []Message // FIFO of frame arrival, across all channels
}

// NewDemultiplexer constructs a Demultiplexer reading frames from r,
// with infoCapacity bounding each channel's Info ring buffer.
func NewDemultiplexer(r io.Reader, infoCapacity int) *Demultiplexer {
	return &Demultiplexer{
		r:        r,
		channels: make(map[uint8]*channelQueue),
		infoCap:  infoCapacity,
	}
}

// RegisterChannel declares a new logical channel, failing with
// ErrDuplicateID if id is already registered.
func (d *Demultiplexer) RegisterChannel(id uint8) error {
	if _, ok := d.channels[id]; ok {
		return ErrDuplicateID
	}
	d.channels[id] = &channelQueue{cap: d.infoCap}
	return nil
}

// readOne pulls one frame off the stream and appends it to the
// arrival-order queue Poll drains; Info/Warning/Log-class messages are
// additionally kept in their channel's info ring buffer.
func (d *Demultiplexer) readOne() error {
	f, err := ReadFrame(d.r)
	if err != nil {
		return err
	}
	q, ok := d.channels[f.Channel]
	if !ok {
		return fmt.Errorf("rsyncwire: frame on unregistered channel %d", f.Channel)
	}
	msg := Message{Channel: f.Channel, Tag: Tag(f.Tag), Payload: f.Payload}
	switch msg.Tag {
	case MsgInfo, MsgWarning, MsgLog:
		q.pushInfo(msg)
	}
	d.order = append(d.order, msg)
	return nil
}

// Poll returns the next pending frame across all channels, in FIFO
// order of frame arrival, pulling from the underlying stream as
// needed.
func (d *Demultiplexer) Poll() (Message, error) {
	for len(d.order) == 0 {
		if err := d.readOne(); err != nil {
			return Message{}, err
		}
	}
	m := d.order[0]
	d.order = d.order[1:]
	return m, nil
}

// pollResult carries one Poll outcome across the goroutine boundary
// PollTimeout introduces; err distinguishes an underlying read
// failure from the zero Message a timeout returns.
type pollResult struct {
	msg Message
	err error
}

// PollTimeout is Poll with an idle bound: if no frame arrives within
// timeout, it returns ErrIoTimeout instead of blocking further.
// The underlying Poll call that timed out
// keeps running in the background against d's shared state; callers
// that treat a timeout as fatal should not call PollTimeout again on
// the same Demultiplexer afterward, since its next read may still
// belong to the abandoned call.
func (d *Demultiplexer) PollTimeout(timeout time.Duration) (Message, error) {
	ch := make(chan pollResult, 1)
	go func() {
		m, err := d.Poll()
		ch <- pollResult{msg: m, err: err}
	}()
	select {
	case r := <-ch:
		return r.msg, r.err
	case <-time.After(timeout):
		return Message{}, ErrIoTimeout
	}
}

// Infos returns the current contents (oldest first) of channel id's
// Info ring buffer.
func (d *Demultiplexer) Infos(id uint8) []Message {
	q, ok := d.channels[id]
	if !ok {
		return nil
	}
	out := make([]Message, len(q.infos))
	copy(out, q.infos)
	return out
}
