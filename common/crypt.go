package common

import (
	"crypto/aes"
	"encoding/hex"
)

const AES_KEY = "dbguardian&backs"

// AesEncryptECB encrypts credentials before they are written to the
// persistent store. An empty input stays empty so optional secrets do
// not turn into ciphertext.
func AesEncryptECB(origData string) string {
	if origData == "" {
		return ""
	}
	block, err := aes.NewCipher([]byte(AES_KEY))
	if err != nil {
		return origData
	}
	bs := block.BlockSize()
	src := PKCS5Padding([]byte(origData), bs)
	out := make([]byte, len(src))
	dst := out
	for len(src) > 0 {
		block.Encrypt(dst, src[:bs])
		src = src[bs:]
		dst = dst[bs:]
	}
	return hex.EncodeToString(out)
}

func AesDecryptECB(encrypted string) string {
	if encrypted == "" {
		return ""
	}
	src, err := hex.DecodeString(encrypted)
	if err != nil {
		return encrypted
	}
	block, err := aes.NewCipher([]byte(AES_KEY))
	if err != nil {
		return encrypted
	}
	bs := block.BlockSize()
	if len(src)%bs != 0 {
		return encrypted
	}
	out := make([]byte, len(src))
	dst := out
	for len(src) > 0 {
		block.Decrypt(dst, src[:bs])
		src = src[bs:]
		dst = dst[bs:]
	}
	out = PKCS5UnPadding(out)
	return string(out)
}

func PKCS5Padding(ciphertext []byte, blockSize int) []byte {
	padding := blockSize - len(ciphertext)%blockSize
	padtext := make([]byte, padding)
	for i := range padtext {
		padtext[i] = byte(padding)
	}
	return append(ciphertext, padtext...)
}

func PKCS5UnPadding(origData []byte) []byte {
	length := len(origData)
	if length == 0 {
		return origData
	}
	unpadding := int(origData[length-1])
	if unpadding > length {
		return origData
	}
	return origData[:length-unpadding]
}
