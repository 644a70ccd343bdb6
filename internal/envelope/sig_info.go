package envelope

import (
	"encoding/json"

	"github.com/mr-tron/base58"

	"github.com/empower1/enclavecore/internal/coreerr"
)

// ParseSigInfo deserializes the host's SigInfo JSON blob.
func ParseSigInfo(raw []byte) (*SigInfo, error) {
	var info SigInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, coreerr.New(coreerr.KindFailedToDeserialize, err)
	}
	return &info, nil
}

// DebugBase58 base58-encodes raw bytes for trace logging only — never part
// of any wire format, just a compact human-legible form for log lines that
// echo nonces or key material prefixes.
func DebugBase58(b []byte) string {
	return base58.Encode(b)
}
