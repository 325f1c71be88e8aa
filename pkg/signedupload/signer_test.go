package signedupload

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPolicyText   = `{"expiration":"2030-01-01T00:00:00.000Z","conditions":[["content-length-range",0,1048576000]]}`
	testPolicyBase64 = "eyJjb25kaXRpb25zIjpbWyJjb250ZW50LWxlbmd0aC1yYW5nZSIsMCwxMDQ4NTc2MDAwXV0sImV4cGlyYXRpb24iOiIyMDMwLTAxLTAxVDAwOjAwOjAwLjAwMFoifQ=="
	testSignature    = "GlwEX6hE4+oZQAeHRdS5tA7C20w="
)

func TestBuildSignature_KnownVector(t *testing.T) {
	policy, sig, err := BuildSignature(json.RawMessage(testPolicyText), "secret")
	require.NoError(t, err)
	assert.Equal(t, testPolicyBase64, policy)
	assert.Equal(t, testSignature, sig)
}

func TestBuildSignature_Deterministic(t *testing.T) {
	doc := map[string]any{
		"expiration": "2030-01-01T00:00:00.000Z",
		"conditions": []any{[]any{"content-length-range", 0, 1048576000}},
	}

	p1, s1, err := BuildSignature(doc, "secret")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		p, s, err := BuildSignature(doc, "secret")
		require.NoError(t, err)
		assert.Equal(t, p1, p)
		assert.Equal(t, s1, s)
	}

	// A Go map and the equivalent raw text sign identically.
	assert.Equal(t, testPolicyBase64, p1)
	assert.Equal(t, testSignature, s1)
}

func TestBuildSignature_SingleByteChange(t *testing.T) {
	changed := `{"expiration":"2030-01-01T00:00:00.000Z","conditions":[["content-length-range",0,1048576001]]}`

	_, sig, err := BuildSignature(json.RawMessage(changed), "secret")
	require.NoError(t, err)
	assert.NotEqual(t, testSignature, sig)

	_, sig, err = BuildSignature(json.RawMessage(testPolicyText), "secreT")
	require.NoError(t, err)
	assert.NotEqual(t, testSignature, sig)
}

func TestBuildSignature_EmptyKey(t *testing.T) {
	_, _, err := BuildSignature(json.RawMessage(testPolicyText), "")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestBuildSignature_InvalidDocument(t *testing.T) {
	_, _, err := BuildSignature(json.RawMessage(`{"expiration":`), "secret")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, _, err = BuildSignature(nil, "secret")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestVerifySignature(t *testing.T) {
	assert.True(t, VerifySignature(testPolicyBase64, testSignature, "secret"))
	assert.False(t, VerifySignature(testPolicyBase64, testSignature, "other"))
	assert.False(t, VerifySignature(testPolicyBase64, testSignature, ""))
}

func TestBuildSignature_StringDocument(t *testing.T) {
	policy, sig, err := BuildSignature("plain-policy", "secret")
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(policy)
	require.NoError(t, err)
	assert.Equal(t, `"plain-policy"`, string(decoded))
	assert.True(t, VerifySignature(policy, sig, "secret"))
}

func TestCanonicalJSON_NoHTMLEscaping(t *testing.T) {
	out, err := CanonicalJSON(map[string]string{"b": "<x>", "a": "&"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"&","b":"<x>"}`, string(out))
}

func TestPolicyDocument_RoundTrip(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := PolicyDocument{
		Expiration: exp,
		Conditions: []Condition{
			Bucket("media"),
			StartsWith("key", "test/"),
			ContentLengthRange(0, 1048576000),
		},
	}

	b, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"expiration":"2030-01-01T00:00:00.000Z","conditions":[{"bucket":"media"},["starts-with","$key","test/"],["content-length-range",0,1048576000]]}`,
		string(b))

	var parsed PolicyDocument
	require.NoError(t, json.Unmarshal(b, &parsed))
	assert.True(t, exp.Equal(parsed.Expiration))
	require.Len(t, parsed.Conditions, 3)
	assert.Equal(t, "starts-with", parsed.Conditions[1][0])
}

func TestNewUploadPolicy_Validation(t *testing.T) {
	doc := json.RawMessage(testPolicyText)

	tests := []struct {
		name      string
		accessID  string
		accessKey string
		document  any
		host      string
	}{
		{"missing access id", "", "secret", doc, "https://x.example"},
		{"missing access key", "id", "", doc, "https://x.example"},
		{"missing host", "id", "secret", doc, ""},
		{"relative host", "id", "secret", doc, "/upload"},
		{"unsupported scheme", "id", "secret", doc, "ftp://x.example"},
		{"missing document", "id", "secret", nil, "https://x.example"},
		{"array document", "id", "secret", json.RawMessage(`[1,2]`), "https://x.example"},
		{"string document", "id", "secret", testPolicyText, "https://x.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUploadPolicy(tt.accessID, tt.accessKey, tt.document, tt.host)
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
		})
	}

	p, err := NewUploadPolicy("id", "secret", doc, "https://x.example")
	require.NoError(t, err)
	assert.Equal(t, "id", p.AccessID())
	assert.Equal(t, "https://x.example", p.Host())
}

func TestUploadPolicy_SignIsFreshPerKey(t *testing.T) {
	p, err := NewUploadPolicy("id", "secret", json.RawMessage(testPolicyText), "https://x.example")
	require.NoError(t, err)

	a, err := p.Sign("test/a.png")
	require.NoError(t, err)
	b, err := p.Sign("test/b.png")
	require.NoError(t, err)

	assert.Equal(t, "id", a.AccessID)
	assert.Equal(t, testPolicyBase64, a.PolicyBase64)
	assert.Equal(t, testSignature, a.Signature)
	assert.Equal(t, "test/a.png", a.ObjectKey)
	assert.Equal(t, "test/b.png", b.ObjectKey)
}
