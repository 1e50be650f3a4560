package userid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaltsArePure(t *testing.T) {
	secret := []byte("shared-secret")
	a := New(secret, time.Hour)
	b := New(secret, time.Hour)
	ts := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)

	require.Equal(t, a.At(ts), b.At(ts))
	require.Equal(t, a.At(ts), a.At(ts.Add(44*time.Minute)))
	require.NotEqual(t, a.At(ts), a.At(ts.Add(45*time.Minute)))
	require.Equal(t, a.At(ts), a.Previous(ts.Add(45*time.Minute)))
	require.NotEqual(t, a.At(ts), New([]byte("other"), time.Hour).At(ts))
}

func TestEffectiveFrom(t *testing.T) {
	s := New(nil, 24*time.Hour)
	ts := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), s.EffectiveFrom(ts))
	require.Equal(t, s.Bucket(ts)-1, s.Bucket(s.EffectiveFrom(ts).Add(-time.Nanosecond)))
}

func TestFingerprint(t *testing.T) {
	s := New([]byte("k"), time.Hour).At(time.Unix(0, 0))
	a := Fingerprint(s, "abc", "1.2.3.0", "ua")
	require.Len(t, a, 16)
	require.Equal(t, a, Fingerprint(s, "abc", "1.2.3.0", "ua"))
	require.NotEqual(t, a, Fingerprint(s, "abd", "1.2.3.0", "ua"))
	require.NotEqual(t, Hash(s, "ab", "c"), Hash(s, "a", "bc"))
}

func TestPrefix(t *testing.T) {
	require.Equal(t, "1.2.3.0", Prefix("1.2.3.4", DefaultV4Prefix, DefaultV6Prefix))
	require.Equal(t, "1.2.3.4", Prefix("1.2.3.4", 32, DefaultV6Prefix))
	require.Equal(t, "2001:db8:1::", Prefix("2001:db8:1:2::5", DefaultV4Prefix, DefaultV6Prefix))
	require.Equal(t, "not-an-ip", Prefix("not-an-ip", DefaultV4Prefix, DefaultV6Prefix))
}
