package grouplock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := newFakeCodec()
	caller := NewCallerID("alice")
	addr := StringAddress("member-a")

	cases := []struct {
		name string
		req  Request
	}{
		{"grant with owner and timeout", Request{
			Type: GrantLock, LockName: "inventory", Owner: Owner{Address: addr, CallerID: caller},
			Timeout: 2500, IsTrylock: true,
		}},
		{"grant without trylock", Request{
			Type: GrantLock, LockName: "inventory", Owner: Owner{Address: addr, CallerID: caller},
		}},
		{"release", Request{
			Type: ReleaseLock, LockName: "inventory", Owner: Owner{Address: addr, CallerID: caller},
		}},
		{"granted response, nil owner caller", Request{
			Type: LockGranted, LockName: "inventory", Owner: Owner{Address: addr},
		}},
		{"create lock replication, no owner at all", Request{
			Type: CreateLock, LockName: "inventory",
		}},
		{"delete lock replication", Request{
			Type: DeleteLock, LockName: "inventory",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Encode(tc.req, codec)
			require.NoError(t, err)
			assert.True(t, HasProtocolHeader(encoded))

			decoded, err := Decode(encoded, codec)
			require.NoError(t, err)

			assert.Equal(t, tc.req.Type, decoded.Type)
			assert.Equal(t, tc.req.LockName, decoded.LockName)
			assert.Equal(t, tc.req.Timeout, decoded.Timeout)
			assert.Equal(t, tc.req.IsTrylock, decoded.IsTrylock)
			assert.True(t, tc.req.Owner.Equal(decoded.Owner))
		})
	}
}

func TestEncodeRejectsEmptyLockName(t *testing.T) {
	_, err := Encode(Request{Type: GrantLock}, newFakeCodec())
	assert.ErrorIs(t, err, ErrEmptyLockName)
}

func TestDecodeRejectsMissingHeader(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01}, newFakeCodec())
	assert.ErrorIs(t, err, ErrBadHeader)
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	encoded, err := Encode(Request{Type: GrantLock, LockName: "x"}, newFakeCodec())
	require.NoError(t, err)

	for n := 1; n < len(encoded); n++ {
		_, err := Decode(encoded[:n], newFakeCodec())
		assert.Error(t, err, "truncated to %d bytes should fail to decode", n)
	}
}

func TestDecodeRejectsUnknownRequestType(t *testing.T) {
	encoded, err := Encode(Request{Type: GrantLock, LockName: "x"}, newFakeCodec())
	require.NoError(t, err)
	encoded[1] = 0xff // stomp the type ordinal past DeleteLock

	_, err = Decode(encoded, newFakeCodec())
	assert.ErrorIs(t, err, ErrUnknownRequestType)
}

func TestHasProtocolHeader(t *testing.T) {
	assert.False(t, HasProtocolHeader(nil))
	assert.False(t, HasProtocolHeader([]byte{0x01}))
	assert.True(t, HasProtocolHeader([]byte{protocolHeader, 0x00}))
}
