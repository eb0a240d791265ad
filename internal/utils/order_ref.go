package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Unambiguous alphabet: no 0/O or 1/I/L, customers read these back over email
const orderRefAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const orderRefLength = 8

// GenerateOrderRef creates a customer-facing order reference in the format
// "CL-XXXXXXXX".
func GenerateOrderRef() (string, error) {
	max := big.NewInt(int64(len(orderRefAlphabet)))

	buf := make([]byte, orderRefLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate order reference: %w", err)
		}
		buf[i] = orderRefAlphabet[n.Int64()]
	}

	return fmt.Sprintf("CL-%s", buf), nil
}
