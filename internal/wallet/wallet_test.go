package wallet

import (
	"strings"
	"testing"

	"github.com/egonjunior/tkb-asset-otc-sub000/internal/models"
)

func TestValidateTRC20(t *testing.T) {
	// The TRON USDT contract address, a known-good base58check string.
	if err := Validate("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", models.NetworkTRC20); err != nil {
		t.Fatalf("valid TRON address rejected: %v", err)
	}
	if err := Validate("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6u", models.NetworkTRC20); err == nil {
		t.Fatalf("address with broken checksum accepted")
	}
	if err := Validate("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", models.NetworkTRC20); err == nil {
		t.Fatalf("EVM address accepted as TRC20")
	}
}

func TestValidateEVM(t *testing.T) {
	// EIP-55 reference vectors.
	checksummed := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
	}
	for _, net := range []models.Network{models.NetworkERC20, models.NetworkBEP20, models.NetworkPolygon} {
		for _, addr := range checksummed {
			if err := Validate(addr, net); err != nil {
				t.Fatalf("valid %s address %s rejected: %v", net, addr, err)
			}
		}
	}

	// All-lowercase carries no checksum and is accepted.
	if err := Validate(strings.ToLower(checksummed[0]), models.NetworkERC20); err != nil {
		t.Fatalf("lowercase address rejected: %v", err)
	}

	// Mixed case with a wrong checksum is rejected.
	bad := "0x5Aaeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	if err := Validate(bad, models.NetworkERC20); err == nil {
		t.Fatalf("bad EIP-55 checksum accepted")
	}

	if err := Validate("0x1234", models.NetworkERC20); err == nil {
		t.Fatalf("short address accepted")
	}
}

func TestValidateUnknownNetwork(t *testing.T) {
	if err := Validate("whatever", models.Network("XRP")); err == nil {
		t.Fatalf("unknown network accepted")
	}
}
