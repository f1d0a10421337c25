package wallet

import (
	"encoding/hex"
	"errors"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/sha3"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/models"
)

// TRON mainnet address version byte.
const tronVersion = 0x41

var evmAddrRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

var ErrInvalidAddress = errors.New("invalid wallet address for network")

// Validate checks that addr is a plausible destination for the given network.
// TRC20 addresses are base58check with the TRON version byte; the EVM families
// share the 0x + 40 hex shape, with the EIP-55 checksum enforced when the
// address is mixed-case.
func Validate(addr string, network models.Network) error {
	addr = strings.TrimSpace(addr)
	switch network {
	case models.NetworkTRC20:
		payload, version, err := base58.CheckDecode(addr)
		if err != nil || version != tronVersion || len(payload) != 20 {
			return ErrInvalidAddress
		}
		return nil
	case models.NetworkERC20, models.NetworkBEP20, models.NetworkPolygon:
		if !evmAddrRe.MatchString(addr) {
			return ErrInvalidAddress
		}
		if !validEIP55(addr[2:]) {
			return ErrInvalidAddress
		}
		return nil
	default:
		return ErrInvalidAddress
	}
}

func validEIP55(hexAddr string) bool {
	lower := strings.ToLower(hexAddr)
	if hexAddr == lower || hexAddr == strings.ToUpper(hexAddr) {
		// Unchecksummed addresses are accepted as-is.
		return true
	}

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	for i := 0; i < len(hexAddr); i++ {
		c := hexAddr[i]
		if c >= '0' && c <= '9' {
			continue
		}
		upper := digest[i] >= '8'
		if upper != (c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
