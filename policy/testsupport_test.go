package policy_test

import (
	"sync"

	"github.com/dijkstracula/grouplock"
)

type fakePolicyContext struct {
	sender grouplock.Sender
	codec  grouplock.AddressCodec
	local  grouplock.MemberAddress
	view   []grouplock.MemberAddress
	cfg    grouplock.Config
}

func (f *fakePolicyContext) Sender() grouplock.Sender              { return f.sender }
func (f *fakePolicyContext) Codec() grouplock.AddressCodec         { return f.codec }
func (f *fakePolicyContext) LocalAddress() grouplock.MemberAddress { return f.local }
func (f *fakePolicyContext) View() []grouplock.MemberAddress       { return f.view }
func (f *fakePolicyContext) Config() grouplock.Config              { return f.cfg }

var _ grouplock.PolicyContext = (*fakePolicyContext)(nil)

// recordingSender captures every SendMessage call instead of delivering it
// anywhere, so policy tests can assert on routing decisions alone.
type recordingSender struct {
	mu   sync.Mutex
	sent []recordedSend
}

type recordedSend struct {
	Dest    grouplock.MemberAddress
	Payload []byte
	Flags   grouplock.MessageFlags
}

func (s *recordingSender) SendMessage(dest grouplock.MemberAddress, payload []byte, flags grouplock.MessageFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, recordedSend{Dest: dest, Payload: payload, Flags: flags})
	return nil
}

func (s *recordingSender) all() []recordedSend {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recordedSend, len(s.sent))
	copy(out, s.sent)
	return out
}

var _ grouplock.Sender = (*recordingSender)(nil)
