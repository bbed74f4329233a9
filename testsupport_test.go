package grouplock

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
)

// fakeSender records every SendMessage call for assertions, and optionally
// forwards the payload to a peer fakeSender to simulate a two-member
// exchange without pulling in the memtransport subpackage (which imports
// this package and would make an internal _test.go importing it a cycle).
type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage

	peers     map[string]*fakeSender
	onDeliver func(payload []byte)
}

type sentMessage struct {
	Dest    MemberAddress
	Payload []byte
	Flags   MessageFlags
}

func newFakeSender() *fakeSender {
	return &fakeSender{peers: make(map[string]*fakeSender)}
}

func (f *fakeSender) link(addr MemberAddress, peer *fakeSender) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers[addr.Key()] = peer
}

func (f *fakeSender) SendMessage(dest MemberAddress, payload []byte, flags MessageFlags) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{Dest: dest, Payload: payload, Flags: flags})
	peer, ok := f.peers[dest.Key()]
	f.mu.Unlock()
	if ok {
		peer.deliver(payload)
	}
	return nil
}

// deliver routes an incoming payload to the handler the test installed with
// setOnDeliver (whatever is consuming this fakeSender's "inbox", a
// ServerLock or Layer under test).
func (f *fakeSender) deliver(payload []byte) {
	f.mu.Lock()
	onDeliver := f.onDeliver
	f.mu.Unlock()
	if onDeliver != nil {
		onDeliver(payload)
	}
}

func (f *fakeSender) setOnDeliver(h func(payload []byte)) {
	f.mu.Lock()
	f.onDeliver = h
	f.mu.Unlock()
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeCodec is a minimal AddressCodec over StringAddress, local to this
// package's internal tests (see fakeSender's doc comment for why it isn't
// memtransport.Codec).
type fakeCodec struct {
	mu        sync.Mutex
	next      int64
	byOrdinal map[int64]*CallerID
	byPointer map[*CallerID]int64
}

func newFakeCodec() *fakeCodec {
	return &fakeCodec{
		byOrdinal: make(map[int64]*CallerID),
		byPointer: make(map[*CallerID]int64),
	}
}

func (c *fakeCodec) EncodeAddress(addr MemberAddress) ([]byte, error) {
	s, ok := addr.(StringAddress)
	if !ok {
		return nil, errors.Errorf("fakeCodec: unsupported address type %T", addr)
	}
	b := []byte(string(s))
	out := make([]byte, 2+len(b))
	binary.BigEndian.PutUint16(out[:2], uint16(len(b)))
	copy(out[2:], b)
	return out, nil
}

func (c *fakeCodec) DecodeAddress(b []byte) (MemberAddress, []byte, error) {
	if len(b) < 2 {
		return nil, nil, ErrShortBuffer
	}
	n := int(binary.BigEndian.Uint16(b[:2]))
	b = b[2:]
	if len(b) < n {
		return nil, nil, ErrShortBuffer
	}
	return StringAddress(b[:n]), b[n:], nil
}

func (c *fakeCodec) EncodeCallerID(id *CallerID) int64 {
	if id == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ord, ok := c.byPointer[id]; ok {
		return ord
	}
	c.next++
	c.byPointer[id] = c.next
	c.byOrdinal[c.next] = id
	return c.next
}

func (c *fakeCodec) DecodeCallerID(ordinal int64) *CallerID {
	if ordinal == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byOrdinal[ordinal]
}

var (
	_ Sender       = (*fakeSender)(nil)
	_ AddressCodec = (*fakeCodec)(nil)
)
