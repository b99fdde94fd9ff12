package ldap

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"golang.org/x/crypto/argon2"
	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// ErrPasswordFormat is returned by VerifyPassword for values it cannot parse.
var ErrPasswordFormat = errors.New("unsupported password value")

const argon2Scheme = "{ARGON2}"

// EncodeUnicodePwd returns password in the form Active Directory accepts
// for unicodePwd: surrounded by double quotes and UTF-16LE encoded. The
// server only accepts the write over an encrypted connection.
func EncodeUnicodePwd(password string) (string, error) {
	encoded, err := utf16le.NewEncoder().String(`"` + password + `"`)
	if err != nil {
		return "", fmt.Errorf("encoding unicodePwd: %w", err)
	}
	return encoded, nil
}

// Argon2Params tunes HashPassword.
type Argon2Params struct {
	Memory      uint32 `default:"65536"` // KiB
	Iterations  uint32 `default:"3"`
	Parallelism uint8  `default:"2"`
	SaltLength  int    `default:"16"`
	KeyLength   uint32 `default:"32"`
}

// DefaultArgon2Params returns the parameters OpenLDAP's argon2 module uses
// by default.
func DefaultArgon2Params() Argon2Params {
	var p Argon2Params
	if err := defaults.Set(&p); err != nil {
		panic(fmt.Sprintf("ldap: invalid argon2 defaults: %v", err))
	}
	return p
}

// HashPassword returns a userPassword value of the form
//
//	{ARGON2}$argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
//
// with a random salt.
func HashPassword(password string, p Argon2Params) (string, error) {
	if p.SaltLength <= 0 || p.KeyLength == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return "", fmt.Errorf("%w: invalid argon2 parameters", ErrInvalidArgument)
	}

	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	return formatArgon2(password, salt, p), nil
}

func formatArgon2(password string, salt []byte, p Argon2Params) string {
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return fmt.Sprintf("%s$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Scheme, argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// VerifyPassword reports whether password matches a value produced by
// HashPassword. Values in any other scheme fail with ErrPasswordFormat.
func VerifyPassword(password, hashed string) (bool, error) {
	rest, ok := strings.CutPrefix(hashed, argon2Scheme)
	if !ok {
		return false, fmt.Errorf("%w: missing %s prefix", ErrPasswordFormat, argon2Scheme)
	}

	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(rest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("%w: not an argon2id value", ErrPasswordFormat)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, fmt.Errorf("%w: unsupported argon2 version %q", ErrPasswordFormat, parts[2])
	}

	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return false, fmt.Errorf("%w: parameters %q: %w", ErrPasswordFormat, parts[3], err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("%w: salt: %w", ErrPasswordFormat, err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("%w: hash: %w", ErrPasswordFormat, err)
	}

	got := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
