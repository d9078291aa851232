package negotiate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nullboot/tftpd/pkg/wire"
)

func defaultLimits() Limits {
	return Limits{
		DefaultBlockSize: 512,
		MaxBlockSize:     65464,
		DefaultTimeout:   5,
		MaxWindowSize:    4,
	}
}

func TestNegotiateNoOptionsUsesDefaults(t *testing.T) {
	opts := Negotiate(nil, defaultLimits(), 10000)
	assert.Equal(t, 512, opts.BlockSize)
	assert.Equal(t, 5, opts.Timeout)
	assert.Equal(t, 1, opts.WindowSize)
	assert.False(t, opts.NeedsOack())
}

func TestNegotiateFullOptionSet(t *testing.T) {
	req := []wire.Option{
		{Name: "blksize", Value: "1428"},
		{Name: "tsize", Value: "0"},
		{Name: "windowsize", Value: "4"},
		{Name: "timeout", Value: "3"},
	}
	opts := Negotiate(req, defaultLimits(), 10000)

	assert.Equal(t, 1428, opts.BlockSize)
	assert.Equal(t, int64(10000), opts.Tsize)
	assert.Equal(t, 4, opts.WindowSize)
	assert.Equal(t, 3, opts.Timeout)
	assert.True(t, opts.NeedsOack())
	assert.Len(t, opts.Accepted, 4)
}

func TestNegotiateBlksizeOutOfRangeIgnored(t *testing.T) {
	req := []wire.Option{{Name: "blksize", Value: "4"}}
	opts := Negotiate(req, defaultLimits(), 0)
	assert.Equal(t, 512, opts.BlockSize)
	assert.False(t, opts.NeedsOack())

	req = []wire.Option{{Name: "blksize", Value: "99999"}}
	opts = Negotiate(req, defaultLimits(), 0)
	assert.Equal(t, 512, opts.BlockSize)
}

func TestNegotiateWindowsizeAboveConfiguredMaxRejected(t *testing.T) {
	req := []wire.Option{{Name: "windowsize", Value: "100"}}
	opts := Negotiate(req, defaultLimits(), 0)
	assert.Equal(t, 1, opts.WindowSize) // rejected, falls back to default 1
	assert.False(t, opts.NeedsOack())
}

func TestNegotiateUnknownOptionDroppedSilently(t *testing.T) {
	req := []wire.Option{{Name: "blahblah", Value: "yes"}}
	opts := Negotiate(req, defaultLimits(), 0)
	assert.False(t, opts.NeedsOack())
}

func TestNegotiateMalformedValueIgnoredNotFatal(t *testing.T) {
	req := []wire.Option{{Name: "blksize", Value: "not-a-number"}}
	opts := Negotiate(req, defaultLimits(), 0)
	assert.Equal(t, 512, opts.BlockSize)
	assert.False(t, opts.NeedsOack())
}

func TestNegotiateCaseInsensitiveNames(t *testing.T) {
	req := []wire.Option{{Name: "BLKSIZE", Value: "1024"}}
	opts := Negotiate(req, defaultLimits(), 0)
	assert.Equal(t, 1024, opts.BlockSize)
}

func TestNegotiateTsizeOnlyAcceptedWhenZero(t *testing.T) {
	req := []wire.Option{{Name: "tsize", Value: "123"}}
	opts := Negotiate(req, defaultLimits(), 10000)
	assert.Zero(t, opts.Tsize)
	assert.False(t, opts.NeedsOack())
}
