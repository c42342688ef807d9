package stack

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/mash-protocol/matter-stack/pkg/discovery"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameter bounds for the setup verifier.
const (
	MinIterations = 1000
	MaxIterations = 100000
	MinSaltLen    = 16
	MaxSaltLen    = 32

	// wsLen is the length of each of w0s and w1s.
	wsLen = 40
)

// CommissioningData is the secret material printed on the device.
type CommissioningData struct {
	Passcode      uint32 `yaml:"passcode"`
	Discriminator uint16 `yaml:"discriminator"`
	Salt          []byte `yaml:"salt"`
	Iterations    int    `yaml:"iterations"`
}

// Validate checks the commissioning data.
func (d CommissioningData) Validate() error {
	if err := discovery.ValidatePasscode(d.Passcode); err != nil {
		return err
	}
	if d.Discriminator > discovery.MaxDiscriminator {
		return discovery.ErrInvalidDiscriminator
	}
	if len(d.Salt) < MinSaltLen || len(d.Salt) > MaxSaltLen {
		return fmt.Errorf("salt length %d out of range", len(d.Salt))
	}
	if d.Iterations < MinIterations || d.Iterations > MaxIterations {
		return fmt.Errorf("iterations %d out of range", d.Iterations)
	}
	return nil
}

// ManualPairingCode returns the 11-digit code a user types into a
// commissioner.
func (d CommissioningData) ManualPairingCode() (string, error) {
	return discovery.ManualPairingCode(d.Discriminator, d.Passcode)
}

// Verifier is the SPAKE2+ verifier handed to the protocol engine for the
// passcode-authenticated session.
type Verifier struct {
	// W0 is the 32-byte scalar w0.
	W0 []byte

	// L is the uncompressed point w1*G.
	L []byte
}

// Bytes returns W0 || L.
func (v *Verifier) Bytes() []byte {
	return append(append([]byte(nil), v.W0...), v.L...)
}

// Verifier derives w0s || w1s from the passcode with PBKDF2-SHA256, reduces
// both modulo the P-256 group order and returns w0 with L = w1*G.
func (d CommissioningData) Verifier() (*Verifier, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var pw [4]byte
	binary.LittleEndian.PutUint32(pw[:], d.Passcode)
	ws := pbkdf2.Key(pw[:], d.Salt, d.Iterations, 2*wsLen, sha256.New)

	n := elliptic.P256().Params().N
	w0 := new(big.Int).Mod(new(big.Int).SetBytes(ws[:wsLen]), n)
	w1 := new(big.Int).Mod(new(big.Int).SetBytes(ws[wsLen:]), n)
	if w1.Sign() == 0 {
		return nil, errors.New("degenerate verifier")
	}

	key, err := ecdh.P256().NewPrivateKey(w1.FillBytes(make([]byte, 32)))
	if err != nil {
		return nil, fmt.Errorf("derive L: %w", err)
	}
	return &Verifier{
		W0: w0.FillBytes(make([]byte, 32)),
		L:  key.PublicKey().Bytes(),
	}, nil
}
