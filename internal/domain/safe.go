package domain

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrSafeAddressEmpty   = errors.New("safe address empty")
	ErrSafeAddressInvalid = errors.New("safe address invalid")
)

type SafeInfo struct {
	SafeAddress string   `json:"safeAddress"`
	ChainID     uint64   `json:"chainId"`
	Threshold   int      `json:"threshold"`
	Owners      []string `json:"owners"`
	IsReadOnly  bool     `json:"isReadOnly"`
}

type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	LogoURI  string `json:"logoUri,omitempty"`
}

type ChainInfo struct {
	ChainName      string         `json:"chainName"`
	ChainID        string         `json:"chainId"`
	ShortName      string         `json:"shortName"`
	NativeCurrency NativeCurrency `json:"nativeCurrency"`
	BlockExplorer  string         `json:"blockExplorerUriTemplate,omitempty"`
}

type EnvironmentInfo struct {
	Origin string `json:"origin"`
}

// Permission mirrors an EIP-2255 permission entry.
type Permission struct {
	ParentCapability string `json:"parentCapability"`
	Invoker          string `json:"invoker"`
	Date             int64  `json:"date,omitempty"`
}

// ValidateSafeAddress checks the 0x-prefixed, 20-byte hex form.
func ValidateSafeAddress(addr string) error {
	if addr == "" {
		return ErrSafeAddressEmpty
	}
	if !strings.HasPrefix(addr, "0x") || !common.IsHexAddress(addr) {
		return ErrSafeAddressInvalid
	}
	return nil
}
