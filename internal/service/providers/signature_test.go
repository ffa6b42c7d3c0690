package providers

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClickCreateSignature(t *testing.T) {
	got := ClickCreateSignature("12345", 25000, "order-1", "secret")

	sum := md5.Sum([]byte("12345" + "12345" + "25000" + "order-1" + "secret"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
	assert.Len(t, got, 32)
}

func TestClickVerifySignature(t *testing.T) {
	signTime := int64(1717243200)
	got := ClickVerifySignature("12345", "txn-9", signTime, "secret")

	raw := fmt.Sprintf("%s%s%s%d%d%d%s", "12345", "txn-9", "txn-9", 0, 1, signTime, "secret")
	sum := md5.Sum([]byte(raw))
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestUzcardCreateSignature(t *testing.T) {
	got := UzcardCreateSignature("m-77", 25000, "order-1", "secret")

	sum := sha256.Sum256([]byte("m-77" + "25000" + "order-1" + "secret"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
	assert.Len(t, got, 64)
}

func TestUzcardVerifySignature(t *testing.T) {
	got := UzcardVerifySignature("m-77", "txn-9", "secret")

	sum := sha256.Sum256([]byte("m-77" + "txn-9" + "secret"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestSignaturesDifferPerOrder(t *testing.T) {
	a := ClickCreateSignature("12345", 25000, "order-1", "secret")
	b := ClickCreateSignature("12345", 25000, "order-2", "secret")
	assert.NotEqual(t, a, b)

	c := UzcardCreateSignature("m-77", 25000, "order-1", "secret")
	d := UzcardCreateSignature("m-77", 25000, "order-1", "other-secret")
	assert.NotEqual(t, c, d)
}
