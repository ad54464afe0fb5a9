package chain

import (
	"fmt"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
)

// AccountFromPrivateKey builds a signing account from a hex encoded private
// key, with or without a 0x prefix.
func AccountFromPrivateKey(privateKeyHex string) (*wallet.Account, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("private key required")
	}
	priv, err := keys.NewPrivateKeyFromHex(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return wallet.NewAccountFromPrivateKey(priv), nil
}

// AccountFromWIF builds a signing account from a WIF encoded private key.
func AccountFromWIF(wif string) (*wallet.Account, error) {
	priv, err := keys.NewPrivateKeyFromWIF(strings.TrimSpace(wif))
	if err != nil {
		return nil, fmt.Errorf("parse WIF: %w", err)
	}
	return wallet.NewAccountFromPrivateKey(priv), nil
}
