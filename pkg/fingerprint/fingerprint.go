package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/normalizers"
)

// null is how an absent field is rendered in the hashed string. Existing
// identifiers depend on it.
const null = "None"

const separator = ":"

// Generate returns the identifier of an identity tuple: the hex SHA-1 of
// source, email, name and username joined by ':' after NFKD normalization,
// trimming and lowercasing. Accents are removed from the name.
func Generate(data models.IdentityData) (string, error) {
	if err := Validate(data); err != nil {
		return "", err
	}

	parts := []string{
		field(&data.Source, false),
		field(data.Email, false),
		field(data.Name, true),
		field(data.Username, false),
	}
	s := strings.ToLower(strings.Join(parts, separator))

	hash := sha1.Sum([]byte(s))
	return hex.EncodeToString(hash[:]), nil
}

// MustGenerate is Generate for tuples already known to be valid.
func MustGenerate(data models.IdentityData) string {
	id, err := Generate(data)
	if err != nil {
		panic(err)
	}
	return id
}

// Validate checks the tuple is fingerprintable: a non-blank source and at
// least one non-blank of email, name and username.
func Validate(data models.IdentityData) error {
	if data.Source == "" {
		return errors.InvalidValue("SOURCE_NONE_ERROR", "source cannot be None or empty")
	}
	if strings.TrimSpace(data.Source) == "" {
		return errors.InvalidValue("SOURCE_EMPTY_ERROR", "source cannot be composed by whitespaces only")
	}
	if normalizers.IsBlank(data.Email) && normalizers.IsBlank(data.Name) && normalizers.IsBlank(data.Username) {
		return errors.InvalidValue("IDENTITY_DATA_NONE_OR_EMPTY_ERROR", "identity data cannot be None or empty")
	}
	return nil
}

func field(v *string, unaccent bool) string {
	if v == nil {
		return null
	}
	s := strings.TrimSpace(*v)
	if unaccent {
		return normalizers.Unaccent(s)
	}
	return normalizers.NFKD(s)
}
