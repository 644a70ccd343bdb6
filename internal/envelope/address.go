package envelope

import (
	"github.com/btcsuite/btcutil/bech32"

	"github.com/empower1/enclavecore/internal/coreerr"
)

// HumanAddrHRP is the bech32 human-readable part used for contract and
// account addresses in this core. Real deployments pick this per chain; the
// core fixes one value since it has no concept of multiple chains.
const HumanAddrHRP = "secret"

// HumanAddr is a bech32-encoded address as seen in envelopes and messages.
type HumanAddr string

// CanonicalAddr is the decoded byte form of a HumanAddr.
type CanonicalAddr []byte

// ToCanonical decodes a bech32 HumanAddr into its raw byte form. Failure
// here is always a deserialization error per spec: the core requires this
// to succeed on env.contract.address.
func ToCanonical(addr HumanAddr) (CanonicalAddr, error) {
	hrp, data, err := bech32.Decode(string(addr))
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindFailedToDeserialize, "invalid bech32 address %q: %w", addr, err)
	}
	if hrp != HumanAddrHRP {
		return nil, coreerr.Wrap(coreerr.KindFailedToDeserialize, "unexpected address prefix %q", hrp)
	}
	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindFailedToDeserialize, "invalid bech32 payload: %w", err)
	}
	return CanonicalAddr(decoded), nil
}

// ToHuman encodes a CanonicalAddr back into its bech32 string form.
func ToHuman(addr CanonicalAddr) (HumanAddr, error) {
	converted, err := bech32.ConvertBits(addr, 8, 5, true)
	if err != nil {
		return "", coreerr.Wrap(coreerr.KindFailedToSerialize, "invalid canonical address: %w", err)
	}
	encoded, err := bech32.Encode(HumanAddrHRP, converted)
	if err != nil {
		return "", coreerr.Wrap(coreerr.KindFailedToSerialize, "bech32 encode failed: %w", err)
	}
	return HumanAddr(encoded), nil
}

// EmptyCanonicalAddr is the canonical address used when encrypting query
// output: queries never forward sub-messages, so there is no recipient
// contract to bind the output to.
func EmptyCanonicalAddr() CanonicalAddr {
	return CanonicalAddr{}
}
