// Package server implements pairing-code allocation for the out-of-band
// handshake. Codes are four decimal digits, issued one per peer, and
// single-use.
package server

import (
	"crypto/rand"
	"errors"
	"log"
	"math/big"
)

const (
	// pairingCodeSpace bounds codes to [0, 9999).
	pairingCodeSpace = 9999

	// maxCodeAttempts caps the rejection-sampling loop. With the table
	// near capacity the allocator fails instead of spinning.
	maxCodeAttempts = 1000
)

var errCodeSpaceExhausted = errors.New("pairing code space exhausted")

// allocatePairingCode samples the code space until it finds a code not
// already present in the pairing table. Callers must insert the returned
// code before the next allocation.
func (h *Hub) allocatePairingCode() (int, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := randomPairingCode()
		if _, taken := h.pairings[code]; !taken {
			return code, nil
		}
	}
	return 0, errCodeSpaceExhausted
}

// randomPairingCode returns a cryptographically random code in [0, pairingCodeSpace).
func randomPairingCode() int {
	n, err := rand.Int(rand.Reader, big.NewInt(pairingCodeSpace))
	if err != nil {
		log.Panicf("Failed to generate pairing code: %v", err)
	}
	return int(n.Int64())
}
