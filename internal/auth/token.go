package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"
)

// NewToken returns nbytes of randomness, base64url encoded.
// Setup uses it for session secrets.
func NewToken(nbytes int) (string, error) {
	if nbytes < 16 {
		return "", errors.New("token size too small")
	}
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789!$%&/()=?+#"

// NewPassword returns a random password of n characters.
func NewPassword(n int) (string, error) {
	if n < 12 {
		return "", errors.New("password length too small")
	}
	max := big.NewInt(int64(len(passwordAlphabet)))
	out := make([]byte, n)
	for i := range out {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = passwordAlphabet[v.Int64()]
	}
	return string(out), nil
}
