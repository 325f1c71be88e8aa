package signedupload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// ExpirationLayout is the timestamp format used in policy documents.
const ExpirationLayout = "2006-01-02T15:04:05.000Z"

// UploadPolicy is the process-wide upload configuration. It is immutable
// once built and safe to share between goroutines.
type UploadPolicy struct {
	accessID  string
	accessKey string
	host      string
	document  []byte // canonical JSON
}

// NewUploadPolicy validates the credentials and canonicalises the policy
// document. The document is a value that serialises to a JSON object, or a
// []byte or json.RawMessage holding one. A Go string is marshalled as a JSON
// string and therefore rejected here.
func NewUploadPolicy(accessID, accessKey string, document any, host string) (*UploadPolicy, error) {
	if accessID == "" {
		return nil, configErrorf("access id is required")
	}
	if accessKey == "" {
		return nil, configErrorf("access key is required")
	}
	if err := validateHost(host); err != nil {
		return nil, err
	}
	if document == nil {
		return nil, configErrorf("policy document is required")
	}

	doc, err := CanonicalJSON(document)
	if err != nil {
		return nil, err
	}
	if len(doc) == 0 || doc[0] != '{' {
		return nil, configErrorf("policy document must be a JSON object")
	}

	return &UploadPolicy{
		accessID:  accessID,
		accessKey: accessKey,
		host:      host,
		document:  doc,
	}, nil
}

func validateHost(host string) error {
	if host == "" {
		return configErrorf("host is required")
	}
	u, err := url.Parse(host)
	if err != nil {
		return configErrorf("invalid host %q: %v", host, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return configErrorf("host %q must be an absolute http(s) URL", host)
	}
	return nil
}

// AccessID returns the public access identifier.
func (p *UploadPolicy) AccessID() string { return p.accessID }

// Host returns the upload endpoint.
func (p *UploadPolicy) Host() string { return p.host }

// Document returns a copy of the canonical policy document.
func (p *UploadPolicy) Document() json.RawMessage {
	return append(json.RawMessage(nil), p.document...)
}

// Sign computes the form fields for objectKey. A new value is produced on
// every call.
func (p *UploadPolicy) Sign(objectKey string) (SignedFields, error) {
	policyBase64, signature, err := BuildSignature(json.RawMessage(p.document), p.accessKey)
	if err != nil {
		return SignedFields{}, err
	}
	return SignedFields{
		AccessID:     p.accessID,
		PolicyBase64: policyBase64,
		Signature:    signature,
		ObjectKey:    objectKey,
	}, nil
}

// ObjectURL joins the host and an object key.
func (p *UploadPolicy) ObjectURL(objectKey string) string {
	return ObjectURL(p.host, objectKey)
}

// ObjectURL returns host + "/" + key. The host is used as given, so a
// trailing slash on host yields a doubled slash.
func ObjectURL(host, objectKey string) string {
	return host + "/" + objectKey
}

// CanonicalJSON serialises v with sorted object keys, no HTML escaping and
// no trailing newline. json.RawMessage and []byte are taken as JSON text and
// re-encoded the same way; any other value, strings included, is marshalled.
func CanonicalJSON(v any) ([]byte, error) {
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, configErrorf("policy document is not serialisable: %v", err)
		}
		raw = b
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, configErrorf("policy document is not valid JSON: %v", err)
	}
	if dec.More() {
		return nil, configErrorf("policy document has trailing data")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, configErrorf("policy document is not serialisable: %v", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// PolicyDocument is the provider policy format: an expiration instant and a
// list of conditions the storage side checks against the form.
type PolicyDocument struct {
	Expiration time.Time
	Conditions []Condition
}

// Condition is one entry of the conditions array. It is either a map with a
// single exact-match pair or an operator tuple such as
// ["starts-with", "$key", "test/"].
type Condition []any

// ExactMatch requires form field name to equal value.
func ExactMatch(name, value string) Condition {
	return Condition{"eq", "$" + name, value}
}

// StartsWith requires form field name to start with prefix.
func StartsWith(name, prefix string) Condition {
	return Condition{"starts-with", "$" + name, prefix}
}

// ContentLengthRange bounds the size of the file field.
func ContentLengthRange(min, max int64) Condition {
	return Condition{"content-length-range", min, max}
}

// Bucket restricts uploads to a bucket.
func Bucket(name string) Condition {
	return Condition{map[string]string{"bucket": name}}
}

// MarshalJSON renders the document in provider format.
func (d PolicyDocument) MarshalJSON() ([]byte, error) {
	conds := make([]any, 0, len(d.Conditions))
	for _, c := range d.Conditions {
		if len(c) == 1 {
			conds = append(conds, c[0])
			continue
		}
		conds = append(conds, []any(c))
	}
	return json.Marshal(struct {
		Expiration string `json:"expiration"`
		Conditions []any  `json:"conditions"`
	}{
		Expiration: d.Expiration.UTC().Format(ExpirationLayout),
		Conditions: conds,
	})
}

// UnmarshalJSON parses a provider policy document.
func (d *PolicyDocument) UnmarshalJSON(data []byte) error {
	var raw struct {
		Expiration string            `json:"expiration"`
		Conditions []json.RawMessage `json:"conditions"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw.Expiration != "" {
		exp, err := parseExpiration(raw.Expiration)
		if err != nil {
			return err
		}
		d.Expiration = exp
	}

	d.Conditions = d.Conditions[:0]
	for _, rc := range raw.Conditions {
		inner := json.NewDecoder(bytes.NewReader(rc))
		inner.UseNumber()
		var v any
		if err := inner.Decode(&v); err != nil {
			return err
		}
		switch t := v.(type) {
		case []any:
			d.Conditions = append(d.Conditions, Condition(t))
		case map[string]any:
			d.Conditions = append(d.Conditions, Condition{t})
		default:
			return fmt.Errorf("unsupported policy condition %s", string(rc))
		}
	}
	return nil
}

func parseExpiration(s string) (time.Time, error) {
	for _, layout := range []string{ExpirationLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid expiration %q", s)
}
