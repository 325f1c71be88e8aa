package signedupload

import (
	"fmt"
	"strings"
	"unicode"
)

// ComposeObjectKey returns prefix + fileName.
//
// The file name is not sanitised. When names come from untrusted input the
// resulting key may contain path-like segments; enable WithStrictKeys or call
// ValidateObjectKey to reject them.
func ComposeObjectKey(prefix, fileName string) string {
	return prefix + fileName
}

// ValidateObjectKey rejects keys that are empty, absolute, contain ".."
// segments or control characters.
func ValidateObjectKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrUnsafeObjectKey)
	}
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, "\\") {
		return fmt.Errorf("%w: %q is absolute", ErrUnsafeObjectKey, key)
	}
	for _, seg := range strings.FieldsFunc(key, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return fmt.Errorf("%w: %q contains a parent segment", ErrUnsafeObjectKey, key)
		}
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains control characters", ErrUnsafeObjectKey, key)
		}
	}
	return nil
}
