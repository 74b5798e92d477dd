// Package internal is code only for consumption from within the counters
// project.
package internal

import (
	"crypto/rand"
	"math/big"
)

const alphanumeric = "abcdefghijkmnopqrstuvwxyzABCDEFGHIJKLMNPQRSTUVWXYZ0123456789"

// GenerateRandomString generates a random string composed of alphanumeric
// characters of length size.
func GenerateRandomString(size int) string {
	buf := make([]byte, size)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphanumeric))))
		if err != nil {
			panic(err.Error())
		}
		buf[i] = alphanumeric[n.Int64()]
	}
	return string(buf)
}
