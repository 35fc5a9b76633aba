package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAesEncryptECB(t *testing.T) {
	passwd := "Db_Guardian#2024"
	encrypted := AesEncryptECB(passwd)
	assert.NotEqual(t, passwd, encrypted)
	assert.Equal(t, passwd, AesDecryptECB(encrypted))
}

func TestAesEmpty(t *testing.T) {
	assert.Equal(t, "", AesEncryptECB(""))
	assert.Equal(t, "", AesDecryptECB(""))
}

func TestAesDecryptGarbage(t *testing.T) {
	// plain text that was never encrypted comes back unchanged
	assert.Equal(t, "not-hex!", AesDecryptECB("not-hex!"))
	assert.Equal(t, "abcd", AesDecryptECB("abcd"))
}
