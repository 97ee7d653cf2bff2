package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const tokenSize = 32

var errTokenShape = errors.New("invalid refresh token encoding")

func newSecret(r io.Reader) (string, string, error) {
	var raw [tokenSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return "", "", fmt.Errorf("read refresh secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), hashSecret(raw[:]), nil
}

// LedgerID maps a presented token to the key a ledger stores it under.
func LedgerID(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", errTokenShape
	}
	if len(raw) != tokenSize {
		return "", errTokenShape
	}
	return hashSecret(raw), nil
}

func hashSecret(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

var defaultRand io.Reader = rand.Reader
