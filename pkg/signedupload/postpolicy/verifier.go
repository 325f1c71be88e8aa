package postpolicy

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tendant/signed-upload/pkg/signedupload"
)

// Credentials maps access ids to their secret keys
type Credentials map[string]string

// Grant is the result of a successful verification
type Grant struct {
	AccessID string
	Key      string
	Policy   signedupload.PolicyDocument
	MinSize  int64
	MaxSize  int64 // -1 when the policy sets no upper bound
}

// Allows reports whether size satisfies the content-length-range condition
func (g *Grant) Allows(size int64) error {
	if size < g.MinSize {
		return fmt.Errorf("%w: %d bytes, minimum %d", ErrEntityTooSmall, size, g.MinSize)
	}
	if g.MaxSize >= 0 && size > g.MaxSize {
		return fmt.Errorf("%w: more than %d bytes", ErrEntityTooLarge, g.MaxSize)
	}
	return nil
}

// Verifier checks signed POST form fields against known credentials
type Verifier struct {
	credentials Credentials
	bucket      string
	now         func() time.Time
}

// VerifierOption configures a Verifier
type VerifierOption func(*Verifier)

// WithBucket sets the bucket name bucket conditions are matched against
func WithBucket(name string) VerifierOption {
	return func(v *Verifier) {
		v.bucket = name
	}
}

// WithClock overrides the time source used for expiration checks
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a Verifier for creds
func NewVerifier(creds Credentials, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		credentials: make(Credentials, len(creds)),
		now:         time.Now,
	}
	for id, key := range creds {
		v.credentials[id] = key
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the signature and the policy conditions. Field names in
// form must be lower-cased.
func (v *Verifier) Verify(form map[string]string) (*Grant, error) {
	accessID := form[strings.ToLower(signedupload.FieldAccessID)]
	policy := form[strings.ToLower(signedupload.FieldPolicy)]
	signature := form[strings.ToLower(signedupload.FieldSignature)]
	key := form[signedupload.FieldKey]

	for name, value := range map[string]string{
		signedupload.FieldAccessID:  accessID,
		signedupload.FieldPolicy:    policy,
		signedupload.FieldSignature: signature,
		signedupload.FieldKey:       key,
	} {
		if value == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}

	secret, ok := v.credentials[accessID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccessID, accessID)
	}
	if !signedupload.VerifySignature(policy, signature, secret) {
		return nil, ErrSignatureMismatch
	}

	raw, err := base64.StdEncoding.DecodeString(policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPolicy, err)
	}
	var doc signedupload.PolicyDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPolicy, err)
	}
	if doc.Expiration.IsZero() {
		return nil, fmt.Errorf("%w: expiration is required", ErrMalformedPolicy)
	}
	if !v.now().Before(doc.Expiration) {
		return nil, ErrPolicyExpired
	}

	grant := &Grant{AccessID: accessID, Key: key, Policy: doc, MaxSize: -1}
	for _, cond := range doc.Conditions {
		if err := v.check(cond, form, grant); err != nil {
			return nil, err
		}
	}
	return grant, nil
}

// lookup returns the value a condition field refers to
func (v *Verifier) lookup(form map[string]string, field string) string {
	name := strings.ToLower(strings.TrimPrefix(field, "$"))
	if name == "bucket" && v.bucket != "" {
		return v.bucket
	}
	return form[name]
}

func (v *Verifier) check(cond signedupload.Condition, form map[string]string, grant *Grant) error {
	if len(cond) == 1 {
		m, ok := cond[0].(map[string]any)
		if !ok {
			return fmt.Errorf("%w: unsupported condition %v", ErrMalformedPolicy, cond)
		}
		for field, want := range m {
			if got := v.lookup(form, field); got != fmt.Sprint(want) {
				return fmt.Errorf("%w: %s must equal %v", ErrPolicyCondition, field, want)
			}
		}
		return nil
	}

	if len(cond) != 3 {
		return fmt.Errorf("%w: unsupported condition %v", ErrMalformedPolicy, cond)
	}
	op, _ := cond[0].(string)

	switch strings.ToLower(op) {
	case "content-length-range":
		min, err := toInt64(cond[1])
		if err != nil {
			return err
		}
		max, err := toInt64(cond[2])
		if err != nil {
			return err
		}
		grant.MinSize, grant.MaxSize = min, max
		return nil

	case "eq":
		field, _ := cond[1].(string)
		if got := v.lookup(form, field); got != fmt.Sprint(cond[2]) {
			return fmt.Errorf("%w: %s must equal %v", ErrPolicyCondition, field, cond[2])
		}
		return nil

	case "starts-with":
		field, _ := cond[1].(string)
		prefix := fmt.Sprint(cond[2])
		if got := v.lookup(form, field); !strings.HasPrefix(got, prefix) {
			return fmt.Errorf("%w: %s must start with %q", ErrPolicyCondition, field, prefix)
		}
		return nil

	case "in":
		field, _ := cond[1].(string)
		allowed, ok := cond[2].([]any)
		if !ok {
			return fmt.Errorf("%w: in expects a list", ErrMalformedPolicy)
		}
		got := v.lookup(form, field)
		for _, a := range allowed {
			if got == fmt.Sprint(a) {
				return nil
			}
		}
		return fmt.Errorf("%w: %s is not an allowed value", ErrPolicyCondition, field)

	default:
		return fmt.Errorf("%w: unsupported operator %q", ErrMalformedPolicy, op)
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedPolicy, err)
		}
		return i, nil
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: expected a number, got %v", ErrMalformedPolicy, v)
	}
}
