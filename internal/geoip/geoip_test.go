package geoip

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublic(t *testing.T) {
	for _, s := range []string{"10.0.0.1", "192.168.1.4", "127.0.0.1", "::1", "0.0.0.0", "fe80::1"} {
		require.False(t, Public(net.ParseIP(s)), s)
	}
	require.False(t, Public(nil))
	require.True(t, Public(net.ParseIP("1.2.3.4")))
	require.True(t, Public(net.ParseIP("2001:4860:4860::8888")))
}

func TestNoop(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	_, err = l.Lookup(net.ParseIP("81.2.69.142"))
	require.ErrorIs(t, err, ErrUnresolvable)
	require.NoError(t, l.Close())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open("testdata/does-not-exist.mmdb")
	require.Error(t, err)
}
