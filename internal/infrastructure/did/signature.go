package did

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ConsentMessage is the text a client signs to use the service within
// contextName.
func ConsentMessage(did, contextName string) string {
	return "Access the notification service using context: \"" + contextName + "\"?\n\n" + did
}

// VerifySignature reports whether signature is a personal_sign (EIP-191)
// signature of message by the holder of publicKeyHex. The key may be
// compressed or uncompressed.
func VerifySignature(message, signature, publicKeyHex string) (bool, error) {
	sig, err := hexutil.Decode(ensure0x(signature))
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return false, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	sig = bytes.Clone(sig)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	recovered, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return false, fmt.Errorf("recover public key: %w", err)
	}

	keyBytes, err := hexutil.Decode(ensure0x(publicKeyHex))
	if err != nil {
		return false, fmt.Errorf("decode public key: %w", err)
	}

	var expected []byte
	switch len(keyBytes) {
	case 33:
		pub, err := crypto.DecompressPubkey(keyBytes)
		if err != nil {
			return false, fmt.Errorf("decompress public key: %w", err)
		}
		expected = crypto.FromECDSAPub(pub)
	case 65:
		expected = keyBytes
	default:
		return false, fmt.Errorf("unexpected public key length %d", len(keyBytes))
	}

	return bytes.Equal(crypto.FromECDSAPub(recovered), expected), nil
}

func ensure0x(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return "0x" + s[2:]
	}
	return "0x" + s
}
