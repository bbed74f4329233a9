package grouplock

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// protocolHeader is the zero-byte header tag (§4.1) attached ahead of every
// encoded Request so the up-path can recognize a payload as belonging to
// this protocol layer before attempting to decode it. The spec calls it a
// "zero-byte header tag"; concretely that means a single reserved marker
// byte value that no legitimate wire format below would otherwise start
// with, which the surrounding transport strips before handing the remaining
// bytes to other layers. We use 0xFC as the marker.
const protocolHeader byte = 0xfc

// Encode serializes r to the wire format described in §4.1:
//
//	byte:    protocol header tag
//	byte:    RequestType ordinal
//	uint16:  lock name length (big-endian)
//	bytes:   lock name (UTF-8)
//	byte:    0 = nil owner address, 1 = present
//	bytes:   owner address (AddressCodec.Encode), only if present
//	int64:   owner CallerID, big-endian (see note on CallerID below)
//	int64:   timeout in milliseconds, big-endian
//	byte:    IsTrylock, 0 or 1
//
// CallerID is an in-process token (caller.go) with no wire representation
// of its own; encoding a Request requires an AddressCodec that also knows
// how to turn a *CallerID into a stable integer and back for the lifetime of
// a connection. Callers supply one (see AddressCodec).
func Encode(r Request, codec AddressCodec) ([]byte, error) {
	if r.LockName == "" {
		return nil, ErrEmptyLockName
	}
	nameBytes := []byte(r.LockName)
	if len(nameBytes) > 0xffff {
		return nil, errors.Errorf("grouplock: lock name too long to encode (%d bytes)", len(nameBytes))
	}

	addrBytes, err := encodeAddress(r.Owner.Address, codec)
	if err != nil {
		return nil, errors.Wrap(err, "encode owner address")
	}

	callerOrdinal := codec.EncodeCallerID(r.Owner.CallerID)

	buf := make([]byte, 0, 1+1+2+len(nameBytes)+len(addrBytes)+8+8+1)
	buf = append(buf, protocolHeader)
	buf = append(buf, byte(r.Type))

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(nameBytes)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, nameBytes...)

	buf = append(buf, addrBytes...)

	var callerBuf [8]byte
	binary.BigEndian.PutUint64(callerBuf[:], uint64(callerOrdinal))
	buf = append(buf, callerBuf[:]...)

	var timeoutBuf [8]byte
	binary.BigEndian.PutUint64(timeoutBuf[:], uint64(r.Timeout))
	buf = append(buf, timeoutBuf[:]...)

	if r.IsTrylock {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	return buf, nil
}

func encodeAddress(addr MemberAddress, codec AddressCodec) ([]byte, error) {
	if addr == nil {
		return []byte{0}, nil
	}
	encoded, err := codec.EncodeAddress(addr)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(encoded))
	out = append(out, 1)
	out = append(out, encoded...)
	return out, nil
}

// Decode is the inverse of Encode. It reports ErrBadHeader if b does not
// begin with the protocol header tag (the caller should leave the message
// to other layers in that case, not treat it as a decode failure of this
// protocol - see Layer.Deliver), and ErrShortBuffer/ErrUnknownRequestType for a
// malformed payload that does carry our header, per §4.1's "failure to
// decode must be reported as a protocol error and the message dropped".
func Decode(b []byte, codec AddressCodec) (Request, error) {
	var r Request

	if len(b) < 1 || b[0] != protocolHeader {
		return r, ErrBadHeader
	}
	b = b[1:]

	if len(b) < 1 {
		return r, ErrShortBuffer
	}
	typ := RequestType(b[0])
	if typ > DeleteLock {
		return r, ErrUnknownRequestType
	}
	r.Type = typ
	b = b[1:]

	if len(b) < 2 {
		return r, ErrShortBuffer
	}
	nameLen := int(binary.BigEndian.Uint16(b[:2]))
	b = b[2:]
	if len(b) < nameLen {
		return r, ErrShortBuffer
	}
	r.LockName = string(b[:nameLen])
	b = b[nameLen:]

	if len(b) < 1 {
		return r, ErrShortBuffer
	}
	present := b[0]
	b = b[1:]

	switch present {
	case 0:
		r.Owner.Address = nil
	case 1:
		addr, rest, err := codec.DecodeAddress(b)
		if err != nil {
			return r, errors.Wrap(err, "decode owner address")
		}
		r.Owner.Address = addr
		b = rest
	default:
		return r, errors.Errorf("grouplock: bad address presence byte %d", present)
	}

	if len(b) < 8 {
		return r, ErrShortBuffer
	}
	callerOrdinal := int64(binary.BigEndian.Uint64(b[:8]))
	b = b[8:]
	r.Owner.CallerID = codec.DecodeCallerID(callerOrdinal)

	if len(b) < 8 {
		return r, ErrShortBuffer
	}
	r.Timeout = int64(binary.BigEndian.Uint64(b[:8]))
	b = b[8:]

	if len(b) < 1 {
		return r, ErrShortBuffer
	}
	r.IsTrylock = b[0] != 0

	return r, nil
}

// HasProtocolHeader reports whether b is tagged as belonging to this
// protocol layer, without attempting a full decode. Layer.Deliver uses this to
// decide whether an incoming MESSAGE event is its concern at all (§4.4: "A
// separate zero-byte header tag is attached to every outgoing message so the
// up-path can recognize it").
func HasProtocolHeader(b []byte) bool {
	return len(b) >= 1 && b[0] == protocolHeader
}

// AddressCodec adapts a transport's own address representation (and this
// package's in-process CallerID tokens) to and from bytes, so Encode/Decode
// stay transport-agnostic (§4.1: "owner: serialized as (address, thread_id)
// using the transport's address codec").
//
// CallerID encoding is necessarily a per-connection mapping table (a
// *CallerID has no stable cross-process representation) - see
// memtransport.Codec (built with memtransport.NewCodec) for the reference
// implementation.
type AddressCodec interface {
	EncodeAddress(addr MemberAddress) ([]byte, error)
	DecodeAddress(b []byte) (addr MemberAddress, rest []byte, err error)

	EncodeCallerID(id *CallerID) int64
	DecodeCallerID(ordinal int64) *CallerID
}
