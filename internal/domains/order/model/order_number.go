package model

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const orderNumberPrefix = "SP"

var sixDigits = big.NewInt(1_000_000)

// GenerateOrderNumber returns SP + YYMMDD + 6 random digits.
func GenerateOrderNumber(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, sixDigits)
	if err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	return fmt.Sprintf("%s%s%06d", orderNumberPrefix, now.Format("060102"), n.Int64()), nil
}
