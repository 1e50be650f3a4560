// Package userid derives cookieless visitor fingerprints. Fingerprints are
// keyed by a salt that rotates on a fixed schedule so they cannot be linked
// across rotation periods.
package userid

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"sync/atomic"
	"time"
)

const DefaultPeriod = 24 * time.Hour

type Salt [16]byte

// Salts is the rotation schedule. The salt in effect at t is a pure function
// of (secret, t): nodes sharing a secret agree on it without coordination.
type Salts struct {
	secret []byte
	period time.Duration
	last   atomic.Pointer[bucketSalt]
}

type bucketSalt struct {
	bucket int64
	salt   Salt
}

// New returns a schedule rotating every period. A nil secret generates a
// random one, fingerprints are then only stable within this process.
func New(secret []byte, period time.Duration) *Salts {
	if period <= 0 {
		period = DefaultPeriod
	}
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic("Failed to read random value" + err.Error())
		}
	}
	return &Salts{secret: secret, period: period}
}

func (s *Salts) Period() time.Duration { return s.period }

// Bucket returns the rotation index of t.
func (s *Salts) Bucket(t time.Time) int64 {
	n := t.UnixNano()
	p := int64(s.period)
	b := n / p
	if n%p < 0 {
		b--
	}
	return b
}

// EffectiveFrom returns the time the salt in effect at t became active.
func (s *Salts) EffectiveFrom(t time.Time) time.Time {
	return time.Unix(0, s.Bucket(t)*int64(s.period)).UTC()
}

// At returns the salt in effect at t.
func (s *Salts) At(t time.Time) Salt {
	return s.bucket(s.Bucket(t))
}

// Previous returns the salt in effect right before the one active at t.
func (s *Salts) Previous(t time.Time) Salt {
	return s.bucket(s.Bucket(t) - 1)
}

func (s *Salts) bucket(b int64) Salt {
	if x := s.last.Load(); x != nil && x.bucket == b {
		return x.salt
	}
	m := hmac.New(sha256.New, s.secret)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(b))
	m.Write(buf[:])
	x := &bucketSalt{bucket: b}
	copy(x.salt[:], m.Sum(nil))
	s.last.Store(x)
	return x.salt
}
