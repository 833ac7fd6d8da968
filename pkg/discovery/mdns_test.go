package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvertiserUpdateRequiresAdvertisement(t *testing.T) {
	a, err := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	require.NoError(t, err)

	err = a.Update(&NodeInfo{NodeID: "x", Role: RoleMaster})
	assert.ErrorIs(t, err, ErrNotAdvertising)
	assert.NoError(t, a.Stop())
}

func TestAdvertiserRejectsLongNodeID(t *testing.T) {
	a, err := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	require.NoError(t, err)

	long := make([]byte, MaxInstanceNameLen)
	for i := range long {
		long[i] = 'n'
	}
	err = a.Advertise(context.Background(), &NodeInfo{NodeID: string(long)})
	assert.ErrorIs(t, err, ErrInstanceNameTooLong)
}

func TestAdvertiserHonoursCancelledContext(t *testing.T) {
	a, err := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.Advertise(ctx, &NodeInfo{NodeID: "x"}), context.Canceled)
}

func TestSelectInterface(t *testing.T) {
	assert.Nil(t, selectInterface(""))
	assert.Nil(t, selectInterface("no-such-interface-0"))
}
