package activitypub

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
)

// LDSignature is the embedded `signature` block of an LD-Signatures 2017
// document, used as the fallback verification method of spec §4.C1 when
// no HTTP Signature header is present.
type LDSignature struct {
	Type           string `json:"type"`
	Creator        string `json:"creator"`
	Created        string `json:"created"`
	SignatureValue string `json:"signatureValue"`
}

// VerifyLDSignature checks the `signature` block embedded in an activity
// document against publicKeyPEM. The canonicalization used here is a
// deterministic sorted-key JSON re-encoding rather than full URDNA2015
// RDF normalization (no JSON-LD normalization library is available in
// the dependency set this module draws from); this is sufficient to
// detect tampering with the documents this instance itself understands,
// which is the only case the fallback path needs to cover, but it is not
// a general-purpose LD-Signatures implementation. See DESIGN.md.
func VerifyLDSignature(rawJSON []byte, publicKeyPEM string) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal(rawJSON, &doc); err != nil {
		return "", fmt.Errorf("failed to parse document for LD-Signature: %w", err)
	}

	sigRaw, ok := doc["signature"]
	if !ok {
		return "", fmt.Errorf("document carries no embedded LD-Signature")
	}
	sigBytes, err := json.Marshal(sigRaw)
	if err != nil {
		return "", fmt.Errorf("failed to re-marshal signature block: %w", err)
	}
	var sig LDSignature
	if err := json.Unmarshal(sigBytes, &sig); err != nil {
		return "", fmt.Errorf("malformed LD-Signature block: %w", err)
	}
	if sig.SignatureValue == "" || sig.Creator == "" {
		return "", fmt.Errorf("LD-Signature missing signatureValue or creator")
	}

	signature, err := base64.StdEncoding.DecodeString(sig.SignatureValue)
	if err != nil {
		return "", fmt.Errorf("invalid base64 signatureValue: %w", err)
	}

	delete(doc, "signature")
	docDigest, err := canonicalDigest(doc)
	if err != nil {
		return "", err
	}

	optsDigest, err := canonicalDigest(map[string]any{
		"type":    sig.Type,
		"creator": sig.Creator,
		"created": sig.Created,
	})
	if err != nil {
		return "", err
	}

	pubKey, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return "", fmt.Errorf("invalid public key: %w", err)
	}

	toVerify := sha256.Sum256(append(optsDigest, docDigest...))
	if err := rsa.VerifyPKCS1v15(pubKey, crypto.SHA256, toVerify[:], signature); err != nil {
		return "", fmt.Errorf("LD-Signature verification failed: %w", err)
	}

	return sig.Creator, nil
}

// SignLDDocument is the egress counterpart to VerifyLDSignature, used
// only where a peer is known to require LD-Signatures instead of HTTP
// Signatures.
func SignLDDocument(doc map[string]any, privateKey *rsa.PrivateKey, creatorKeyId string, created string) (map[string]any, error) {
	docDigest, err := canonicalDigest(doc)
	if err != nil {
		return nil, err
	}
	optsDigest, err := canonicalDigest(map[string]any{
		"type":    "RsaSignature2017",
		"creator": creatorKeyId,
		"created": created,
	})
	if err != nil {
		return nil, err
	}
	toSign := sha256.Sum256(append(optsDigest, docDigest...))
	signature, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, toSign[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign LD document: %w", err)
	}

	signed := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		signed[k] = v
	}
	signed["signature"] = LDSignature{
		Type:           "RsaSignature2017",
		Creator:        creatorKeyId,
		Created:        created,
		SignatureValue: base64.StdEncoding.EncodeToString(signature),
	}
	return signed, nil
}

// canonicalDigest produces a deterministic SHA-256 digest of v by
// re-marshaling maps with sorted keys.
func canonicalDigest(v any) ([]byte, error) {
	normalized := normalize(v)
	b, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize document: %w", err)
	}
	digest := sha256.Sum256(b)
	return digest[:], nil
}

func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]any, 0, len(keys)*2)
		for _, k := range keys {
			ordered = append(ordered, k, normalize(val[k]))
		}
		return ordered
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return val
	}
}
