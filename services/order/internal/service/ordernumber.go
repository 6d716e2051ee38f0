package service

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"io"
	"time"
)

const orderNumberRandLen = 6

// NewOrderNumber returns ORD-<yyyymmddHHMMSS>-<6 base32 chars>. Uniqueness is
// enforced by the orders table; callers retry on a collision.
func NewOrderNumber() (string, error) {
	return newOrderNumberAt(time.Now().UTC(), rand.Reader)
}

func newOrderNumberAt(now time.Time, rnd io.Reader) (string, error) {
	var b [5]byte
	if _, err := io.ReadFull(rnd, b[:]); err != nil {
		return "", fmt.Errorf("order number entropy: %w", err)
	}
	suffix := base32.StdEncoding.EncodeToString(b[:])[:orderNumberRandLen]
	return "ORD-" + now.Format("20060102150405") + "-" + suffix, nil
}
