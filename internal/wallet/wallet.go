// Package wallet reads the trading wallet file written by the wallet setup tool.
package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrNoWallet is returned when neither an address nor a wallet file is available.
var ErrNoWallet = errors.New("no wallet configured")

// Info is the public part of the wallet file. The private key is never loaded.
type Info struct {
	Address   string    `json:"address"`
	Network   string    `json:"network,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Load reads the wallet file at path.
func Load(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNoWallet)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read wallet file: %w", err)
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("could not parse wallet file %s: %w", path, err)
	}
	if info.Address == "" {
		return nil, fmt.Errorf("wallet file %s has no address: %w", path, ErrNoWallet)
	}
	return &info, nil
}

// ResolveAddress returns override when set, otherwise the address in the
// wallet file at path.
func ResolveAddress(override, path string) (string, error) {
	if override != "" {
		return override, nil
	}
	info, err := Load(path)
	if err != nil {
		return "", err
	}
	return info.Address, nil
}
