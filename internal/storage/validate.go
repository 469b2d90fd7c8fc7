package storage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Limits enforced before any mutation.
const (
	MaxKeyLength     = 1024
	MaxTagCount      = 50
	MaxTagKeyLength  = 128
	MaxTagValueLen   = 256
	MaxPolicyBytes   = 20 * 1024
	MinPartNumber    = 1
	MaxPartNumber    = 10000
	MinPartSize      = 5 * 1024 * 1024 // all parts but the last
)

// ValidateBucketName enforces DNS-compatible bucket naming: 3-63 chars,
// lowercase letters, digits, hyphens and dots; no leading/trailing
// hyphen or dot, no consecutive dots, not shaped like an IPv4 address.
func ValidateBucketName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return fmt.Errorf("%w: %q: length must be 3-63", ErrInvalidBucketName, name)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.':
		default:
			return fmt.Errorf("%w: %q: illegal character %q", ErrInvalidBucketName, name, c)
		}
	}
	if name[0] == '-' || name[len(name)-1] == '-' {
		return fmt.Errorf("%w: %q: leading or trailing hyphen", ErrInvalidBucketName, name)
	}
	if name[0] == '.' || name[len(name)-1] == '.' {
		return fmt.Errorf("%w: %q: leading or trailing dot", ErrInvalidBucketName, name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q: consecutive dots", ErrInvalidBucketName, name)
	}
	if looksLikeIPv4(name) {
		return fmt.Errorf("%w: %q: must not be an IP address", ErrInvalidBucketName, name)
	}
	return nil
}

// looksLikeIPv4 reports whether the name is four dot-separated decimal
// octets, e.g. "192.168.0.1".
func looksLikeIPv4(name string) bool {
	parts := strings.Split(name, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if len(p) == 0 || len(p) > 3 {
			return false
		}
		n := 0
		for i := 0; i < len(p); i++ {
			if p[i] < '0' || p[i] > '9' {
				return false
			}
			n = n*10 + int(p[i]-'0')
		}
		if n > 255 {
			return false
		}
	}
	return true
}

// ValidateObjectKey enforces the key limits: non-empty, at most 1024
// bytes, no "." or ".." path segments. Trailing slashes are legal; a
// key ending in "/" names a distinct object.
func ValidateObjectKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q: traversal segment", ErrInvalidKey, key)
		}
	}
	return nil
}

// ValidateTags enforces the tag-set limits shared by buckets and
// objects: at most 50 entries, unique keys, key <=128 bytes, value
// <=256 bytes, no empty keys.
func ValidateTags(tags []Tag) error {
	if len(tags) > MaxTagCount {
		return fmt.Errorf("%w: more than %d tags", ErrInvalidTag, MaxTagCount)
	}
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t.Key == "" || len(t.Key) > MaxTagKeyLength {
			return fmt.Errorf("%w: bad key %q", ErrInvalidTag, t.Key)
		}
		if len(t.Value) > MaxTagValueLen {
			return fmt.Errorf("%w: value for %q too long", ErrInvalidTag, t.Key)
		}
		if seen[t.Key] {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidTag, t.Key)
		}
		seen[t.Key] = true
	}
	return nil
}

// validPolicyDocument reports whether a bucket policy parses as a JSON
// document with at least one statement. Policies are stored and served
// back, not evaluated.
func validPolicyDocument(policy string) bool {
	var doc struct {
		Statement []json.RawMessage `json:"Statement"`
	}
	if err := json.Unmarshal([]byte(policy), &doc); err != nil {
		return false
	}
	return len(doc.Statement) > 0
}

// ValidateOwnershipRule accepts exactly the three documented rules.
func ValidateOwnershipRule(rule OwnershipRule) error {
	switch rule {
	case OwnershipBucketOwnerPreferred, OwnershipBucketOwnerEnforced, OwnershipObjectWriter:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidOwnership, rule)
}
