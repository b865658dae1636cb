// Package kdf derives symmetric keys from a user passphrase using
// Argon2id, and encodes/decodes the parameter block stored in an
// envelope header.
package kdf

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// DefaultMemCost is log2(KiB); actual memory used is 2^(MemCost+10) bytes (64 MiB).
	DefaultMemCost = 16
	// DefaultTimeCost is the number of Argon2id iterations.
	DefaultTimeCost = 5
	// DefaultThreads must be 1 for cross-implementation interoperability.
	DefaultThreads = 1
	// DefaultVersion is the Argon2 algorithm version (0x13).
	DefaultVersion = argon2.Version

	paramsEncodedSize = 4
)

// Params holds the Argon2id tuning knobs, each packed as a single byte
// on the wire.
type Params struct {
	Version  byte
	MemCost  byte
	TimeCost byte
	Threads  byte
}

// DefaultParams returns the parameters new envelopes are created with.
func DefaultParams() Params {
	return Params{
		Version:  byte(DefaultVersion),
		MemCost:  DefaultMemCost,
		TimeCost: DefaultTimeCost,
		Threads:  DefaultThreads,
	}
}

// Encode packs the parameters as version, mem_cost, time_cost, threads.
func (p Params) Encode() []byte {
	return []byte{p.Version, p.MemCost, p.TimeCost, p.Threads}
}

// DecodeParams unpacks a 4-byte parameter block written by Encode.
func DecodeParams(raw []byte) (Params, error) {
	if len(raw) != paramsEncodedSize {
		return Params{}, fmt.Errorf("kdf: corrupt argon2 parameter block (want %d bytes, got %d)",
			paramsEncodedSize, len(raw))
	}
	return Params{
		Version:  raw[0],
		MemCost:  raw[1],
		TimeCost: raw[2],
		Threads:  raw[3],
	}, nil
}

// memoryKiB returns the Argon2 memory parameter in KiB: 2^MemCost.
func (p Params) memoryKiB() uint32 {
	return uint32(1) << p.MemCost
}

// Derive stretches passphrase into an outLen-byte key bound to salt.
func Derive(passphrase string, salt []byte, outLen int, p Params) []byte {
	threads := p.Threads
	if threads == 0 {
		threads = 1
	}
	return argon2.IDKey([]byte(passphrase), salt, uint32(p.TimeCost), p.memoryKiB(), threads, uint32(outLen))
}
