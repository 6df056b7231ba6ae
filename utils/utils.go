package utils

import (
	"crypto/sha512"
	"encoding/hex"
	"io"
	"os"
)

// Sha512Hex hashes everything read from r and encodes the result in hex.
func Sha512Hex(r io.Reader) (string, error) {
	hash := sha512.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func Sha512File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return Sha512Hex(file)
}
