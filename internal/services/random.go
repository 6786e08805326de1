package services

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"time"

	"github.com/google/logger"
)

// newRandomSource returns a PCG generator seeded from crypto/rand. Each
// activity owns one; the activity lock serializes access to it.
func newRandomSource() RandomSource {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		logger.Warningf("crypto seed unavailable, falling back to clock seed: %v", err)
		now := uint64(time.Now().UnixNano())
		return rand.New(rand.NewPCG(now, now>>1))
	}
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:])))
}
