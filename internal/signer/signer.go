// Package signer holds the signing collaborator: the engine hands it a
// structured EIP-712 payload and gets signature bytes back. Key material never
// leaves this package.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

type Signer interface {
	Address() common.Address
	Sign(payload apitypes.TypedData) ([]byte, error)
}

// Local signs with an in-process ECDSA key.
type Local struct {
	key *ecdsa.PrivateKey
}

func NewLocal(privateKeyHex string) (*Local, error) {
	privateKeyHex = strings.TrimSpace(privateKeyHex)
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key required")
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Local{key: key}, nil
}

// NewEphemeral generates a throwaway key for dry runs.
func NewEphemeral() (*Local, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	return &Local{key: key}, nil
}

func (s *Local) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// Sign produces a 65-byte EIP-712 signature over the typed data, with the
// recovery byte shifted to the 27/28 convention marketplaces expect.
func (s *Local) Sign(payload apitypes.TypedData) ([]byte, error) {
	digest, err := TypedDataDigest(payload)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// TypedDataDigest computes the EIP-712 digest: keccak256(0x1901 || domain
// separator || message hash).
func TypedDataDigest(td apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash domain: %w", err)
	}
	messageHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("hash message: %w", err)
	}
	raw := make([]byte, 0, 2+len(domainSeparator)+len(messageHash))
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, messageHash...)
	return crypto.Keccak256(raw), nil
}
