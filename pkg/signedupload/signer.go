package signedupload

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
)

// BuildSignature serialises the policy document to canonical JSON (see
// CanonicalJSON for how raw input is treated), base64
// encodes it and signs the encoded text with HMAC-SHA1 keyed by accessKey.
// The result depends only on its inputs; expiry must live in the document.
//
// Example:
//
//	policy, sig, err := signedupload.BuildSignature(doc, accessKey)
//	// form: policy=<policy> Signature=<sig>
func BuildSignature(document any, accessKey string) (policyBase64, signature string, err error) {
	if accessKey == "" {
		return "", "", configErrorf("access key is required")
	}
	if document == nil {
		return "", "", configErrorf("policy document is required")
	}

	doc, err := CanonicalJSON(document)
	if err != nil {
		return "", "", err
	}

	policyBase64 = base64.StdEncoding.EncodeToString(doc)
	signature = signPolicy(policyBase64, []byte(accessKey))
	return policyBase64, signature, nil
}

// VerifySignature reports whether signature matches policyBase64 under
// accessKey, comparing in constant time.
func VerifySignature(policyBase64, signature, accessKey string) bool {
	if accessKey == "" {
		return false
	}
	expected := signPolicy(policyBase64, []byte(accessKey))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func signPolicy(policyBase64 string, key []byte) string {
	h := hmac.New(sha1.New, key)
	h.Write([]byte(policyBase64))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
