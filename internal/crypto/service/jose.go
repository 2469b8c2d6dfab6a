package service

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"strings"

	"github.com/go-jose/go-jose/v3"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	"github.com/cardvault/locker/internal/errors"
)

// JwsBody is the JWS compact form split at the dots and serialized as JSON
// inside the JWE payload.
type JwsBody struct {
	Header    string `json:"header"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

// DottedJws reassembles the JWS compact serialization.
func (j JwsBody) DottedJws() string {
	return j.Header + "." + j.Payload + "." + j.Signature
}

// jwsBodyFromCompact splits a JWS compact serialization into its three segments.
func jwsBodyFromCompact(compact string) (JwsBody, bool) {
	parts := strings.Split(compact, ".")
	if len(parts) != 3 {
		return JwsBody{}, false
	}
	return JwsBody{Header: parts[0], Payload: parts[1], Signature: parts[2]}, true
}

// JweBody is the JWE compact form split at the dots, exchanged as the HTTP
// body when the envelope middleware is enabled.
type JweBody struct {
	Header           string `json:"header"`
	IV               string `json:"iv"`
	EncryptedPayload string `json:"encryptedPayload"`
	Tag              string `json:"tag"`
	EncryptedKey     string `json:"encryptedKey"`
}

// DottedJwe reassembles the JWE compact serialization.
func (j JweBody) DottedJwe() string {
	return j.Header + "." + j.EncryptedKey + "." + j.IV + "." + j.EncryptedPayload + "." + j.Tag
}

// jweBodyFromCompact splits a JWE compact serialization into its five segments.
func jweBodyFromCompact(compact string) (JweBody, bool) {
	parts := strings.Split(compact, ".")
	if len(parts) != 5 {
		return JweBody{}, false
	}
	return JweBody{
		Header:           parts[0],
		EncryptedKey:     parts[1],
		IV:               parts[2],
		EncryptedPayload: parts[3],
		Tag:              parts[4],
	}, true
}

// JWEncryption performs the sign-then-encrypt envelope around the data plane.
//
// Egress: JWS(RS256, locker private key) over the payload, the compact triple
// serialized as JSON, then JWE(EncryptionAlg, A256GCM) to the tenant public
// key. Ingress inverts: JWE decryption with the locker private key, then RS256
// verification with the tenant public key.
//
// EncryptionAlg and DecryptionAlg default to the RSA-OAEP / RSA-OAEP-256 pair:
// peers sign requests under OAEP-256 but accept OAEP responses, and both
// algorithms stay supported on ingress.
type JWEncryption struct {
	LockerPrivateKey *rsa.PrivateKey
	TenantPublicKey  *rsa.PublicKey
	EncryptionAlg    jose.KeyAlgorithm
	DecryptionAlg    jose.KeyAlgorithm
}

// NewJWEncryption builds the envelope from PEM key material with the default
// OAEP/OAEP-256 algorithm pair.
func NewJWEncryption(lockerPrivateKeyPEM, tenantPublicKeyPEM string) (*JWEncryption, error) {
	privateKey, err := parseRSAPrivateKey(lockerPrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	publicKey, err := parseRSAPublicKey(tenantPublicKeyPEM)
	if err != nil {
		return nil, err
	}

	return &JWEncryption{
		LockerPrivateKey: privateKey,
		TenantPublicKey:  publicKey,
		EncryptionAlg:    jose.RSA_OAEP,
		DecryptionAlg:    jose.RSA_OAEP_256,
	}, nil
}

// Encrypt signs the payload and seals it for the tenant.
func (j *JWEncryption) Encrypt(payload []byte) (JweBody, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: j.LockerPrivateKey},
		nil,
	)
	if err != nil {
		return JweBody{}, cryptoDomain.ErrResponseMiddleware
	}

	signed, err := signer.Sign(payload)
	if err != nil {
		return JweBody{}, cryptoDomain.ErrResponseMiddleware
	}

	compactJws, err := signed.CompactSerialize()
	if err != nil {
		return JweBody{}, cryptoDomain.ErrResponseMiddleware
	}

	jwsBody, ok := jwsBodyFromCompact(compactJws)
	if !ok {
		return JweBody{}, cryptoDomain.ErrResponseMiddleware
	}

	jwsJSON, err := json.Marshal(jwsBody)
	if err != nil {
		return JweBody{}, cryptoDomain.ErrResponseMiddleware
	}

	encrypter, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: j.EncryptionAlg, Key: j.TenantPublicKey},
		(&jose.EncrypterOptions{}).WithType("JWT").WithContentType("A256GCM"),
	)
	if err != nil {
		return JweBody{}, cryptoDomain.ErrResponseMiddleware
	}

	encrypted, err := encrypter.Encrypt(jwsJSON)
	if err != nil {
		return JweBody{}, cryptoDomain.ErrResponseMiddleware
	}

	compactJwe, err := encrypted.CompactSerialize()
	if err != nil {
		return JweBody{}, cryptoDomain.ErrResponseMiddleware
	}

	jweBody, ok := jweBodyFromCompact(compactJwe)
	if !ok {
		return JweBody{}, cryptoDomain.ErrResponseMiddleware
	}

	return jweBody, nil
}

// Decrypt opens the envelope and verifies the inner signature, returning the
// signed payload. Only the configured OAEP pair is accepted as the JWE key
// algorithm: peers sign under DecryptionAlg but responses sealed under
// EncryptionAlg round-trip too. Every failure collapses to the opaque
// middleware error.
func (j *JWEncryption) Decrypt(body JweBody) ([]byte, error) {
	encrypted, err := jose.ParseEncrypted(body.DottedJwe())
	if err != nil {
		return nil, cryptoDomain.ErrRequestMiddleware
	}

	headerAlg := jose.KeyAlgorithm(encrypted.Header.Algorithm)
	if headerAlg != j.DecryptionAlg && headerAlg != j.EncryptionAlg {
		return nil, cryptoDomain.ErrRequestMiddleware
	}

	jwsJSON, err := encrypted.Decrypt(j.LockerPrivateKey)
	if err != nil {
		return nil, cryptoDomain.ErrRequestMiddleware
	}

	var jwsBody JwsBody
	if err := json.Unmarshal(jwsJSON, &jwsBody); err != nil {
		return nil, cryptoDomain.ErrRequestMiddleware
	}

	signed, err := jose.ParseSigned(jwsBody.DottedJws())
	if err != nil {
		return nil, cryptoDomain.ErrRequestMiddleware
	}

	payload, err := signed.Verify(j.TenantPublicKey)
	if err != nil {
		return nil, cryptoDomain.ErrRequestMiddleware
	}

	return payload, nil
}

// parseRSAPrivateKey reads an RSA private key from PKCS#1 or PKCS#8 PEM.
func parseRSAPrivateKey(material string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(material))
	if block == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "no PEM block in private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "failed to parse private key")
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Wrap(errors.ErrInvalidInput, "private key is not RSA")
	}
	return key, nil
}

// parseRSAPublicKey reads an RSA public key from PKIX or PKCS#1 PEM.
func parseRSAPublicKey(material string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(material))
	if block == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "no PEM block in public key")
	}

	if parsed, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if key, ok := parsed.(*rsa.PublicKey); ok {
			return key, nil
		}
		return nil, errors.Wrap(errors.ErrInvalidInput, "public key is not RSA")
	}

	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "failed to parse public key")
	}
	return key, nil
}
