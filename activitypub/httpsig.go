package activitypub

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"code.superseriousbusiness.org/httpsig"
)

// ParsePrivateKey accepts both the legacy PKCS#1 ("RSA PRIVATE KEY") and
// the current PKCS#8 ("PRIVATE KEY") PEM encodings, reflecting the same
// key-format transition util.ConvertPrivateKeyToPKCS8 migrates stored
// keys through.
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	if strings.TrimSpace(pemString) == "" {
		return nil, fmt.Errorf("empty private key PEM")
	}
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block containing private key")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS8 private key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("PKCS8 key is not an RSA private key")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported private key PEM type %q", block.Type)
	}
}

// ParsePublicKey accepts both the legacy PKCS#1 ("RSA PUBLIC KEY") and the
// current PKIX ("PUBLIC KEY") PEM encodings, for the same reason as
// ParsePrivateKey above: older peers (and our own pre-migration rows)
// still hand us PKCS#1 keys.
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	if strings.TrimSpace(pemString) == "" {
		return nil, fmt.Errorf("empty public key PEM")
	}
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block containing public key")
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKIX public key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("PKIX key is not an RSA public key")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported public key PEM type %q", block.Type)
	}
}

// sigHeaders is the minimum header set required by spec §6:
// "(request-target) host date digest" — digest only applies when the
// request carries a body.
func sigHeaders(req *http.Request) []string {
	headers := []string{"(request-target)", "host", "date"}
	if req.Header.Get("Digest") != "" {
		headers = append(headers, "digest")
	}
	return headers
}

// SignRequest signs req with privateKey under keyId, per spec §6:
// algorithm=rsa-sha256, signing (request-target) host date [digest].
// It reads and replaces req.Body so the caller must not rely on the
// original body reader afterward.
func SignRequest(req *http.Request, privateKey *rsa.PrivateKey, keyId string) error {
	var bodyBytes []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return fmt.Errorf("failed to read request body for signing: %w", err)
		}
		bodyBytes = b
		req.Body = io.NopCloser(bytes.NewReader(b))
	}

	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if req.Host == "" {
		req.Host = req.URL.Host
	}

	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		sigHeaders(req),
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to construct signer: %w", err)
	}

	if err := signer.SignRequest(privateKey, keyId, req, bodyBytes); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	return nil
}

// VerifyRequest verifies req's HTTP Signature against publicKeyPEM and
// returns the actor URI (the keyId with any #fragment stripped), per
// spec §4.C1. Clock-skew enforcement (±12h on Date/(created)) is the
// caller's responsibility via CheckClockSkew, since the skew budget is
// configurable (AppConfig.Conf.SigSkewSeconds).
func VerifyRequest(req *http.Request, publicKeyPEM string) (string, error) {
	pubKey, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return "", fmt.Errorf("invalid public key: %w", err)
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("failed to construct signature verifier: %w", err)
	}

	keyId := verifier.KeyId()
	if keyId == "" {
		return "", fmt.Errorf("signature missing keyId")
	}

	if err := verifier.Verify(pubKey, httpsig.RSA_SHA256); err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}

	actorURI := keyId
	if idx := strings.Index(keyId, "#"); idx >= 0 {
		actorURI = keyId[:idx]
	}
	return actorURI, nil
}

// CheckClockSkew enforces the ±skew window spec §4.C1 requires around the
// signed Date header.
func CheckClockSkew(req *http.Request, skew time.Duration) error {
	dateHeader := req.Header.Get("Date")
	if dateHeader == "" {
		return fmt.Errorf("missing Date header")
	}
	signedAt, err := http.ParseTime(dateHeader)
	if err != nil {
		return fmt.Errorf("unparseable Date header: %w", err)
	}
	delta := time.Since(signedAt)
	if delta < 0 {
		delta = -delta
	}
	if delta > skew {
		return fmt.Errorf("clock skew %s exceeds allowed %s", delta, skew)
	}
	return nil
}
