package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// KeySeparator joins the components of a derived key.
const KeySeparator = ":"

var keyPartPattern = regexp.MustCompile(`^[^:\s]+$`)

// ValidateKeyPart checks that part can be used as a single key component:
// non-empty, without the separator and without whitespace.
func ValidateKeyPart(name, part string) error {
	err := validation.Validate(part,
		validation.Required,
		validation.Match(keyPartPattern).Error("must not contain ':' or whitespace"),
	)
	if err != nil {
		return invalidKeyError(name, part, name+" "+err.Error())
	}
	return nil
}

// DeriveKey builds prefix:id[:qualifier...]. Every component is validated,
// so two distinct component lists can never produce the same key.
func DeriveKey(prefix, id string, qualifiers ...string) (string, error) {
	if err := ValidateKeyPart("prefix", prefix); err != nil {
		return "", err
	}
	if err := ValidateKeyPart("id", id); err != nil {
		return "", err
	}

	parts := make([]string, 0, len(qualifiers)+2)
	parts = append(parts, prefix, id)
	for _, q := range qualifiers {
		if err := ValidateKeyPart("qualifier", q); err != nil {
			return "", err
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, KeySeparator), nil
}

// KeyPrefix returns the prefix shared by every key derived from the given
// leading components, including the trailing separator.
func KeyPrefix(parts ...string) (string, error) {
	for _, part := range parts {
		if err := ValidateKeyPart("prefix", part); err != nil {
			return "", err
		}
	}
	return strings.Join(parts, KeySeparator) + KeySeparator, nil
}

var argSerializer = NewDefaultKeySerializer()

// HashArgs returns a hex sha256 digest of the canonical form of args.
// Equal argument lists hash equally across processes.
func HashArgs(args ...any) string {
	return hashCanonical(argSerializer.SerializeKey("", args...))
}

func hashCanonical(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
