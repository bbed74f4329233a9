// Package memtransport is an in-memory reference implementation of
// grouplock.Sender and grouplock.AddressCodec, used by this module's own
// tests to exercise the core end to end without a real network (§6 names
// Sender/AddressCodec as the only two interfaces a transport must supply).
package memtransport

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/dijkstracula/grouplock"
)

// Network is a shared in-memory message bus: every Node registered on the
// same Network can address every other by the grouplock.StringAddress
// handed back from NewNode.
type Network struct {
	mu    sync.Mutex
	nodes map[string]*Node
}

// NewNetwork constructs an empty bus.
func NewNetwork() *Network {
	return &Network{nodes: make(map[string]*Node)}
}

// Node is one member's endpoint on a Network. It implements
// grouplock.Sender; pair it with a Codec and a *grouplock.Layer to form a
// complete member.
type Node struct {
	addr    grouplock.StringAddress
	network *Network

	mu      sync.Mutex
	handler func(from grouplock.MemberAddress, payload []byte)
}

// NewNode registers a fresh member on the bus. label is folded into the
// generated address for debug readability only (see
// grouplock.NewStringAddress).
func (n *Network) NewNode(label string) *Node {
	node := &Node{addr: grouplock.NewStringAddress(label), network: n}
	n.mu.Lock()
	n.nodes[node.addr.Key()] = node
	n.mu.Unlock()
	return node
}

// Address returns the node's address on this Network.
func (n *Node) Address() grouplock.StringAddress { return n.addr }

// SetHandler wires incoming deliveries to a Layer. Call it with
// layer.Deliver (ignoring the returned bool/error, or logging them) before
// any SendMessage reaches this node.
func (n *Node) SetHandler(h func(from grouplock.MemberAddress, payload []byte)) {
	n.mu.Lock()
	n.handler = h
	n.mu.Unlock()
}

// SendMessage implements grouplock.Sender. A nil dest broadcasts to every
// node currently on the Network (§3's "broadcast" convention). Delivery
// runs on its own goroutine per recipient so a handler that synchronously
// calls back into SendMessage (as a ServerLock's response path does) can
// never deadlock against the sender.
func (n *Node) SendMessage(dest grouplock.MemberAddress, payload []byte, _ grouplock.MessageFlags) error {
	for _, target := range n.network.resolve(dest) {
		target := target
		go target.receive(n.addr, payload)
	}
	return nil
}

func (n *Network) resolve(dest grouplock.MemberAddress) []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	if dest == nil {
		out := make([]*Node, 0, len(n.nodes))
		for _, node := range n.nodes {
			out = append(out, node)
		}
		return out
	}
	if node, ok := n.nodes[dest.Key()]; ok {
		return []*Node{node}
	}
	return nil
}

func (n *Node) receive(from grouplock.MemberAddress, payload []byte) {
	n.mu.Lock()
	h := n.handler
	n.mu.Unlock()
	if h != nil {
		h(from, payload)
	}
}

// Codec implements grouplock.AddressCodec over grouplock.StringAddress
// values and an in-process CallerID<->int64 mapping table. A *CallerID has
// no cross-process representation, so a production transport keeps one
// such table per connection; a single in-memory Network simulates every
// member in one process, so tests should construct one Codec with NewCodec
// and share it across every Node on the Network (each real connection in a
// multi-process deployment would get its own). Using a distinct Codec per
// Node here would make one node's CallerID ordinals meaningless to another.
type Codec struct {
	mu        sync.Mutex
	next      int64
	byOrdinal map[int64]*grouplock.CallerID
	byPointer map[*grouplock.CallerID]int64
}

// NewCodec constructs an empty Codec.
func NewCodec() *Codec {
	return &Codec{
		byOrdinal: make(map[int64]*grouplock.CallerID),
		byPointer: make(map[*grouplock.CallerID]int64),
	}
}

// EncodeAddress implements grouplock.AddressCodec.
func (c *Codec) EncodeAddress(addr grouplock.MemberAddress) ([]byte, error) {
	s, ok := addr.(grouplock.StringAddress)
	if !ok {
		return nil, errors.Errorf("memtransport: unsupported address type %T", addr)
	}
	b := []byte(string(s))
	if len(b) > 0xffff {
		return nil, errors.Errorf("memtransport: address too long to encode (%d bytes)", len(b))
	}
	out := make([]byte, 2+len(b))
	binary.BigEndian.PutUint16(out[:2], uint16(len(b)))
	copy(out[2:], b)
	return out, nil
}

// DecodeAddress implements grouplock.AddressCodec.
func (c *Codec) DecodeAddress(b []byte) (grouplock.MemberAddress, []byte, error) {
	if len(b) < 2 {
		return nil, nil, grouplock.ErrShortBuffer
	}
	n := int(binary.BigEndian.Uint16(b[:2]))
	b = b[2:]
	if len(b) < n {
		return nil, nil, grouplock.ErrShortBuffer
	}
	return grouplock.StringAddress(b[:n]), b[n:], nil
}

// EncodeCallerID implements grouplock.AddressCodec.
func (c *Codec) EncodeCallerID(id *grouplock.CallerID) int64 {
	if id == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ord, ok := c.byPointer[id]; ok {
		return ord
	}
	c.next++
	ord := c.next
	c.byPointer[id] = ord
	c.byOrdinal[ord] = id
	return ord
}

// DecodeCallerID implements grouplock.AddressCodec.
func (c *Codec) DecodeCallerID(ordinal int64) *grouplock.CallerID {
	if ordinal == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byOrdinal[ordinal]
}

var (
	_ grouplock.Sender       = (*Node)(nil)
	_ grouplock.AddressCodec = (*Codec)(nil)
)
