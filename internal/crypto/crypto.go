package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ewest/midea/internal/midea"
)

const blockSize = 16

// zeroIV is the initialization vector used by the appliance transport. The
// protocol fixes it to all zeroes.
var zeroIV = make([]byte, blockSize)

// Security bundles the keys of one app profile and performs every
// cryptographic operation of the protocol: the AES ciphers of the LAN
// transports, TCP session key derivation, cloud request signing, password
// hashing, and the access-token derived string cipher used by the cloud API.
type Security struct {
	appKey  string
	signKey []byte
	iotKey  string
	hmacKey string

	// encKey is MD5(signKey); it encrypts v2 LAN payloads.
	encKey []byte

	// dataKey and dataIV are derived from the cloud access token and
	// encrypt strings exchanged with the cloud API.
	dataKey string
	dataIV  string
}

// NewSecurity creates a Security for the given app profile.
func NewSecurity(profile midea.AppProfile) *Security {
	sum := md5.Sum([]byte(profile.SignKey))
	return &Security{
		appKey:  profile.AppKey,
		signKey: []byte(profile.SignKey),
		iotKey:  profile.IoTKey,
		hmacKey: profile.HMACKey,
		encKey:  sum[:],
	}
}

func pkcs7Pad(data []byte) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, midea.NewProtocolError("invalid padded data length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, midea.NewProtocolError("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, midea.NewProtocolError("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}

func ecbEncrypt(block cipher.Block, data []byte) []byte {
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += blockSize {
		block.Encrypt(out[i:i+blockSize], data[i:i+blockSize])
	}
	return out
}

func ecbDecrypt(block cipher.Block, data []byte) []byte {
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += blockSize {
		block.Decrypt(out[i:i+blockSize], data[i:i+blockSize])
	}
	return out
}

// AESEncrypt encrypts raw with AES-ECB and PKCS7 padding using the sign-key
// derived key. This is the v2 LAN payload cipher.
func (s *Security) AESEncrypt(raw []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, err
	}
	return ecbEncrypt(block, pkcs7Pad(raw)), nil
}

// AESDecrypt is the inverse of AESEncrypt.
func (s *Security) AESDecrypt(raw []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%blockSize != 0 {
		return nil, midea.NewProtocolError("encrypted payload is not block aligned")
	}
	block, err := aes.NewCipher(s.encKey)
	if err != nil {
		return nil, err
	}
	return pkcs7Unpad(ecbDecrypt(block, raw))
}

// AESCBCEncrypt encrypts raw with AES-CBC and the protocol's zero IV. The
// caller is responsible for block alignment; the v3 framing manages its own
// padding.
func (s *Security) AESCBCEncrypt(raw, key []byte) ([]byte, error) {
	if len(raw)%blockSize != 0 {
		return nil, midea.NewProtocolError("plaintext is not block aligned")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(raw))
	cipher.NewCBCEncrypter(block, zeroIV).CryptBlocks(out, raw)
	return out, nil
}

// AESCBCDecrypt is the inverse of AESCBCEncrypt.
func (s *Security) AESCBCDecrypt(raw, key []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%blockSize != 0 {
		return nil, midea.NewProtocolError("ciphertext is not block aligned")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, zeroIV).CryptBlocks(out, raw)
	return out, nil
}

// MD5Fingerprint computes the v2 packet trailer: MD5 of the packet so far
// concatenated with the sign key.
func (s *Security) MD5Fingerprint(raw []byte) []byte {
	sum := md5.Sum(append(append([]byte{}, raw...), s.signKey...))
	return sum[:]
}

// TCPKey derives the session key from the appliance's handshake response and
// the local key half of the token/key pair. The response carries 32 bytes of
// ciphertext followed by a 32-byte SHA-256 signature of the plaintext; the
// session key is the plaintext XOR-ed with the local key.
func (s *Security) TCPKey(response, localKey []byte) ([]byte, error) {
	if bytes.Equal(response, []byte("ERROR")) {
		return nil, midea.NewAuthenticationError("authentication failed - error packet")
	}
	if len(response) != 64 {
		return nil, midea.NewAuthenticationError(
			fmt.Sprintf("handshake packet length %d instead of 64", len(response)))
	}
	plain, err := s.AESCBCDecrypt(response[:32], localKey)
	if err != nil {
		return nil, err
	}
	sign := sha256.Sum256(plain)
	if !bytes.Equal(sign[:], response[32:]) {
		return nil, midea.NewAuthenticationError("handshake packet signature mismatch")
	}
	key := make([]byte, len(plain))
	for i, b := range plain {
		key[i] = b ^ localKey[i%len(localKey)]
	}
	return key, nil
}

// Sign signs a legacy cloud API request: the URL path, the alphabetically
// sorted and URL-decoded query string, and the app key are concatenated and
// SHA-256 hashed.
func (s *Security) Sign(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", midea.NewCloudRequestError("invalid request URL", err)
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	query := strings.Join(pairs, "&")
	sum := sha256.Sum256([]byte(u.Path + query + s.appKey))
	return hex.EncodeToString(sum[:]), nil
}

// SignProxied signs a proxied (v5) cloud API request: HMAC-SHA256 over the
// IoT key, the request body, the sorted query parameters and the random
// nonce, keyed with the HMAC key.
func (s *Security) SignProxied(query map[string]string, data, random string) string {
	var msg strings.Builder
	msg.WriteString(s.iotKey)
	msg.WriteString(data)
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		msg.WriteString(k)
		msg.WriteString(query[k])
	}
	msg.WriteString(random)
	mac := hmac.New(sha256.New, []byte(s.hmacKey))
	mac.Write([]byte(msg.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// EncryptPassword hashes an account password for the legacy login flow:
// sha256hex(loginID + sha256hex(password) + appkey).
func (s *Security) EncryptPassword(loginID, password string) string {
	inner := sha256.Sum256([]byte(password))
	outer := sha256.Sum256([]byte(loginID + hex.EncodeToString(inner[:]) + s.appKey))
	return hex.EncodeToString(outer[:])
}

// EncryptIAMPassword hashes an account password for the proxied login flow,
// which double-MD5s the password before the outer hash.
func (s *Security) EncryptIAMPassword(loginID, password string) string {
	first := md5.Sum([]byte(password))
	second := md5.Sum([]byte(hex.EncodeToString(first[:])))
	outer := sha256.Sum256([]byte(loginID + hex.EncodeToString(second[:]) + s.appKey))
	return hex.EncodeToString(outer[:])
}

// MD5AppKey returns the string cipher key derived from the app key, used to
// unwrap legacy access tokens.
func (s *Security) MD5AppKey() string {
	sum := md5.Sum([]byte(s.appKey))
	return hex.EncodeToString(sum[:])[:16]
}

// SetAccessToken installs a legacy access token and derives the data key
// used for cloud string encryption from it.
func (s *Security) SetAccessToken(token string) error {
	dataKey, err := s.DecryptString(token, s.MD5AppKey(), "")
	if err != nil {
		return err
	}
	s.dataKey = dataKey
	s.dataIV = ""
	return nil
}

// SetAccessTokenWithRandom installs a proxied access token. Key and IV for
// unwrapping come from the SHA-256 of the app key; the data IV is decrypted
// from the server-provided random value.
func (s *Security) SetAccessTokenWithRandom(token, randomData string) error {
	sum := sha256.Sum256([]byte(s.appKey))
	hexSum := hex.EncodeToString(sum[:])
	key, iv := hexSum[:16], hexSum[16:32]
	dataKey, err := s.DecryptString(token, key, iv)
	if err != nil {
		return err
	}
	dataIV, err := s.DecryptString(randomData, key, iv)
	if err != nil {
		return err
	}
	s.dataKey = dataKey
	s.dataIV = dataIV
	return nil
}

// DataKey returns the current cloud data encryption key, empty until an
// access token has been installed.
func (s *Security) DataKey() string {
	return s.dataKey
}

func (s *Security) stringCipher(key, iv string) (cipher.Block, string, string, error) {
	if key == "" {
		key, iv = s.dataKey, s.dataIV
	}
	if key == "" {
		return nil, "", "", midea.NewAuthenticationError("missing data key")
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, "", "", err
	}
	return block, key, iv, nil
}

// EncryptString encrypts a UTF-8 string with the given key (or the data key
// when key is empty) and returns hex. ECB without an IV, CBC with one.
func (s *Security) EncryptString(data, key, iv string) (string, error) {
	block, _, iv, err := s.stringCipher(key, iv)
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad([]byte(data))
	var out []byte
	if iv == "" {
		out = ecbEncrypt(block, padded)
	} else {
		out = make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, []byte(iv)).CryptBlocks(out, padded)
	}
	return hex.EncodeToString(out), nil
}

// DecryptString is the inverse of EncryptString; data is hex.
func (s *Security) DecryptString(data, key, iv string) (string, error) {
	block, _, iv, err := s.stringCipher(key, iv)
	if err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(data)
	if err != nil {
		return "", midea.NewProtocolError("encrypted string is not valid hex")
	}
	if len(raw) == 0 || len(raw)%blockSize != 0 {
		return "", midea.NewProtocolError("encrypted string is not block aligned")
	}
	var plain []byte
	if iv == "" {
		plain = ecbDecrypt(block, raw)
	} else {
		plain = make([]byte, len(raw))
		cipher.NewCBCDecrypter(block, []byte(iv)).CryptBlocks(plain, raw)
	}
	plain, err = pkcs7Unpad(plain)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
