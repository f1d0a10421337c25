package txhash

import (
	"regexp"
	"strings"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/models"
)

var (
	tronHashRe = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	evmHashRe  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

	tronscanRe = regexp.MustCompile(`tronscan\.(?:org|io)/#?/?transaction/([0-9a-fA-F]{64})`)
	evmScanRe  = regexp.MustCompile(`(?:etherscan\.io|bscscan\.com|polygonscan\.com)/tx/(0x[0-9a-fA-F]{64})`)
)

// Extract pulls a transaction hash out of a block-explorer URL. Anything that
// does not look like a known explorer link is returned trimmed, unchanged.
func Extract(input string) string {
	s := strings.TrimSpace(input)
	if m := tronscanRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := evmScanRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// Valid accepts TRON-style (bare 64 hex) and EVM-style (0x + 64 hex) hashes.
func Valid(hash string) bool {
	return tronHashRe.MatchString(hash) || evmHashRe.MatchString(hash)
}

// ExplorerLink builds the public explorer URL for a sent transaction.
func ExplorerLink(hash string, network models.Network) string {
	switch network {
	case models.NetworkTRC20:
		return "https://tronscan.org/#/transaction/" + hash
	case models.NetworkERC20:
		return "https://etherscan.io/tx/" + hash
	case models.NetworkBEP20:
		return "https://bscscan.com/tx/" + hash
	case models.NetworkPolygon:
		return "https://polygonscan.com/tx/" + hash
	default:
		return "#"
	}
}
