package secret

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// 配置文件里的密钥可以写成 enc:<base64(nonce|ciphertext)>，启动时用主密钥解开

const Prefix = "enc:"

// 密钥衍生用的固定信息，改动后旧密文无法解开
var (
	salt       = []byte("bracketflow/config")
	sharedInfo = []byte("sealed-secret-v1")
)

var ErrNoMasterKey = errors.New("master key required for sealed value")

// IsSealed 是否是加密后的值
func IsSealed(v string) bool {
	return strings.HasPrefix(v, Prefix)
}

// 将主密钥衍生为对称密钥
func deriveKey(masterKey string) ([]byte, error) {
	if masterKey == "" {
		return nil, ErrNoMasterKey
	}
	r := hkdf.New(sha512.New, []byte(masterKey), salt, sharedInfo)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal 加密，每次使用随机 nonce
func Seal(plaintext, masterKey string) (string, error) {
	key, err := deriveKey(masterKey)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open 解密，非加密值原样返回
func Open(v, masterKey string) (string, error) {
	if !IsSealed(v) {
		return v, nil
	}
	key, err := deriveKey(masterKey)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(v, Prefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("sealed value too short")
	}
	plaintext, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plaintext), nil
}
