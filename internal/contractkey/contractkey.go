// Package contractkey implements the Contract-Key Service: deriving,
// embedding, extracting, and validating the per-instance key that binds a
// deployed contract to its code and address.
package contractkey

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/hkdf"

	"github.com/empower1/enclavecore/internal/coreerr"
	"github.com/empower1/enclavecore/internal/envelope"
)

// Length is the canonical contract-key size: a 32-byte authentication tag
// followed by a 32-byte encryption seed.
const Length = 64

const tagLength = 32

// ContractKey is the fixed-length key embedded in on-chain contract
// metadata after init and re-supplied by the host on every later call.
type ContractKey [Length]byte

// Tag returns the authentication-tag half of the key.
func (k ContractKey) Tag() []byte { return k[:tagLength] }

// Seed returns the encryption-seed half of the key.
func (k ContractKey) Seed() []byte { return k[tagLength:] }

const kdfInfo = "enclavecore/contract-key/v1"

func deriveTag(enclaveSecret, canonicalAddr []byte, codeHash envelope.CodeHash) []byte {
	salt := sha256.Sum256(append(append([]byte{}, canonicalAddr...), codeHash[:]...))
	reader := hkdf.New(sha256.New, enclaveSecret, salt[:], []byte(kdfInfo+"/tag"))
	tag := make([]byte, tagLength)
	_, _ = reader.Read(tag) // hkdf.Read never fails for a fixed, valid-sized request
	return tag
}

func deriveSeed(enclaveSecret []byte, env *envelope.EnvV010, canonicalAddr []byte) []byte {
	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], env.Block.Height)
	salt := sha256.Sum256(append(append([]byte(env.Message.Sender), heightBuf[:]...), canonicalAddr...))
	reader := hkdf.New(sha256.New, enclaveSecret, salt[:], []byte(kdfInfo+"/seed"))
	seed := make([]byte, tagLength)
	_, _ = reader.Read(seed)
	return seed
}

// Generate derives a fresh ContractKey for init. It is deterministic over
// (env, codeHash, canonicalAddr) combined with the enclave master secret, so
// two init calls with identical inputs inside the same enclave yield a
// byte-identical key (testable property 3).
func Generate(enclaveSecret []byte, env *envelope.EnvV010, codeHash envelope.CodeHash, canonicalAddr envelope.CanonicalAddr) ContractKey {
	var key ContractKey
	copy(key[:tagLength], deriveTag(enclaveSecret, canonicalAddr, codeHash))
	copy(key[tagLength:], deriveSeed(enclaveSecret, env, canonicalAddr))
	return key
}

// Extract reads the ContractKey the host claims is bound to this contract
// from env.ContractKey. An absent or short key is a fatal authentication
// failure on handle.
func Extract(env *envelope.EnvV010) (ContractKey, error) {
	var key ContractKey
	if env.ContractKey == nil {
		return key, coreerr.Wrap(coreerr.KindFailedContractAuthentication, "contract key absent from env")
	}
	raw, err := hex.DecodeString(*env.ContractKey)
	if err != nil || len(raw) != Length {
		return key, coreerr.Wrap(coreerr.KindFailedContractAuthentication, "contract key malformed")
	}
	copy(key[:], raw)
	return key, nil
}

// Validate recomputes the authentication tag from (canonicalAddr, codeHash,
// enclaveSecret) and compares it in constant time against key's tag half.
func Validate(enclaveSecret []byte, key ContractKey, canonicalAddr envelope.CanonicalAddr, codeHash envelope.CodeHash) bool {
	expected := deriveTag(enclaveSecret, canonicalAddr, codeHash)
	return subtle.ConstantTimeCompare(expected, key.Tag()) == 1
}
