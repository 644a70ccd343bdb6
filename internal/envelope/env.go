// Package envelope implements the Envelope Codec: parsing and serialization
// of the versioned blockchain-view Env, the host's SigInfo, and human/
// canonical address conversion. Functions here do no I/O and, apart from
// EnvToBytes clearing env.ContractKey in place, do not modify their inputs;
// failures are reported as coreerr.CoreError with KindFailedToDeserialize or
// KindFailedToSerialize.
package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/empower1/enclavecore/internal/coreerr"
)

// ApiVersion selects which Env schema a contract was compiled against.
type ApiVersion int

const (
	ApiVersionV010 ApiVersion = iota
	ApiVersionV016
)

// BlockV010 is the block view carried by the V010 Env schema.
type BlockV010 struct {
	Height  uint64 `json:"height"`
	Time    uint64 `json:"time"`
	ChainID string `json:"chain_id"`
}

// MessageInfo carries the sender and any funds attached to the call.
type MessageInfo struct {
	Sender    string          `json:"sender"`
	SentFunds []Coin          `json:"sent_funds"`
}

// Coin is a single denom/amount pair, opaque to the core beyond JSON shape.
type Coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// ContractInfoV010 names the contract under the V010 schema.
type ContractInfoV010 struct {
	Address string `json:"address"`
}

// EnvV010 is the blockchain-view schema passed to older contracts.
type EnvV010 struct {
	Block             BlockV010         `json:"block"`
	Message           MessageInfo       `json:"message"`
	Contract          ContractInfoV010  `json:"contract"`
	ContractKey       *string           `json:"contract_key,omitempty"`
	ContractCodeHash  string            `json:"contract_code_hash"`
}

// Timestamp is nanoseconds since the Unix epoch, per the V016 schema.
type Timestamp uint64

// FromSeconds converts a V010-style second count into a V016 Timestamp.
func FromSeconds(sec uint64) Timestamp {
	return Timestamp(sec * 1_000_000_000)
}

// BlockV016 is the block view carried by the V016 Env schema.
type BlockV016 struct {
	Height  uint64    `json:"height"`
	Time    Timestamp `json:"time"`
	ChainID string    `json:"chain_id"`
}

// ContractInfoV016 names the contract under the V016 schema.
type ContractInfoV016 struct {
	Address  string `json:"address"`
	CodeHash string `json:"code_hash"`
}

// EnvV016 is the blockchain-view schema passed to newer contracts.
type EnvV016 struct {
	Block    BlockV016        `json:"block"`
	Contract ContractInfoV016 `json:"contract"`
}

// CodeHash is the 32-byte digest of a contract's raw wasm bytes.
type CodeHash [32]byte

// Hex returns the 64-character lowercase hex encoding used throughout the
// wire formats (env stamping, plaintext prefix binding).
func (h CodeHash) Hex() string {
	return hex.EncodeToString(h[:])
}

// HashCode computes the CodeHash of raw wasm bytes.
func HashCode(wasm []byte) CodeHash {
	return sha256.Sum256(wasm)
}

// ParseEnvV010 deserializes the host-supplied env JSON. This is always the
// wire representation regardless of the contract's own ApiVersion — V016
// projection happens after parsing, in EnvToBytes.
func ParseEnvV010(raw []byte) (*EnvV010, error) {
	var env EnvV010
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, coreerr.New(coreerr.KindFailedToDeserialize, err)
	}
	return &env, nil
}

// StampCodeHash overwrites env.ContractCodeHash with the authoritative hash
// of the contract bytes, regardless of what the host supplied. ContractKey
// is left untouched here: handle's flow still needs to Extract/Validate it
// after this stamp runs. It is cleared later, in EnvToBytes, once the key
// has done its job and the env is about to cross into the contract.
func StampCodeHash(env *EnvV010, hash CodeHash) {
	env.ContractCodeHash = hash.Hex()
}

// ProjectV010ToV016 builds the V016 view of an already-stamped V010 env.
// block.height, block.chain_id, and contract.address are carried through
// unchanged; block.time (seconds) becomes a Timestamp (nanoseconds).
func ProjectV010ToV016(env *EnvV010) *EnvV016 {
	return &EnvV016{
		Block: BlockV016{
			Height:  env.Block.Height,
			Time:    FromSeconds(env.Block.Time),
			ChainID: env.Block.ChainID,
		},
		Contract: ContractInfoV016{
			Address:  env.Contract.Address,
			CodeHash: env.ContractCodeHash,
		},
	}
}

// EnvToBytes serializes the env for the contract's declared API version.
// ContractCodeHash must already be stamped by StampCodeHash. ContractKey is
// cleared here, not at parse time: by this point handle has already
// Extracted/Validated it (or init has already Generated it), and the env is
// about to cross into the contract, which must never see it.
func EnvToBytes(env *EnvV010, version ApiVersion) ([]byte, error) {
	env.ContractKey = nil
	var (
		out []byte
		err error
	)
	switch version {
	case ApiVersionV010:
		out, err = json.Marshal(env)
	case ApiVersionV016:
		out, err = json.Marshal(ProjectV010ToV016(env))
	default:
		return nil, coreerr.Wrap(coreerr.KindFailedToSerialize, "unknown api version %d", version)
	}
	if err != nil {
		return nil, coreerr.New(coreerr.KindFailedToSerialize, err)
	}
	return out, nil
}
