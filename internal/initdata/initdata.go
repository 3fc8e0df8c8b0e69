package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/spyzhov/ajson"
)

const webAppDataKey = "WebAppData"

var (
	ErrMissingToken  = errors.New("bot token is not set")
	ErrMissingHash   = errors.New("init_data has no hash field")
	ErrHashMismatch  = errors.New("init_data hash mismatch")
	ErrMissingUser   = errors.New("init_data has no user field")
	ErrMalformedUser = errors.New("init_data user field is malformed")
)

// Claim is the identity asserted by a verified init_data payload.
type Claim struct {
	ID           string `json:"id"` // canonical identifier, used as the store key
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

type Verifier struct {
	secret []byte
}

// NewVerifier derives the signing key from the bot token.
func NewVerifier(botToken string) (*Verifier, error) {
	if botToken == "" {
		return nil, ErrMissingToken
	}
	return &Verifier{secret: deriveSecret(botToken)}, nil
}

func deriveSecret(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte(webAppDataKey))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

// Verify checks the payload signature and extracts the identity claim.
func (v *Verifier) Verify(payload string) (Claim, error) {
	if v == nil || len(v.secret) == 0 {
		return Claim{}, ErrMissingToken
	}
	fields := strings.Split(payload, "&")
	received, ok := "", false
	checked := make([]string, 0, len(fields))
	for _, field := range fields {
		if strings.HasPrefix(field, "hash=") {
			received, ok = strings.TrimPrefix(field, "hash="), true
			continue
		}
		checked = append(checked, field)
	}
	if !ok {
		return Claim{}, ErrMissingHash
	}
	expected := sign(v.secret, checked)
	if !hmac.Equal([]byte(expected), []byte(received)) {
		return Claim{}, ErrHashMismatch
	}

	for _, field := range checked {
		if strings.HasPrefix(field, "user=") {
			return parseUser(strings.TrimPrefix(field, "user="))
		}
	}
	return Claim{}, ErrMissingUser
}

// Sign builds a signed payload from raw key=value fields. Values must already be URL-encoded.
func Sign(botToken string, fields ...string) string {
	checked := append([]string(nil), fields...)
	hash := sign(deriveSecret(botToken), checked)
	signed := append(append([]string(nil), fields...), "hash="+hash)
	return strings.Join(signed, "&")
}

// sign sorts fields in place.
func sign(secret []byte, fields []string) string {
	sort.Strings(fields)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.Join(fields, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseUser(encoded string) (Claim, error) {
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return Claim{}, fmt.Errorf("%w: %v", ErrMalformedUser, err)
	}
	root, err := ajson.Unmarshal([]byte(decoded))
	if err != nil {
		return Claim{}, fmt.Errorf("%w: %v", ErrMalformedUser, err)
	}
	if !root.IsObject() || !root.HasKey("id") {
		return Claim{}, fmt.Errorf("%w: no id", ErrMalformedUser)
	}
	idNode, err := root.GetKey("id")
	if err != nil {
		return Claim{}, fmt.Errorf("%w: %v", ErrMalformedUser, err)
	}
	id, err := canonicalID(idNode)
	if err != nil {
		return Claim{}, err
	}
	return Claim{
		ID:           id,
		FirstName:    optionalString(root, "first_name"),
		LastName:     optionalString(root, "last_name"),
		Username:     optionalString(root, "username"),
		LanguageCode: optionalString(root, "language_code"),
	}, nil
}

// canonicalID renders numeric and string ids as the same decimal string.
func canonicalID(node *ajson.Node) (string, error) {
	var raw string
	switch {
	case node.IsNumeric():
		raw = string(node.Source())
	case node.IsString():
		s, err := node.GetString()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedUser, err)
		}
		raw = strings.TrimSpace(s)
	default:
		return "", fmt.Errorf("%w: id must be a number or string", ErrMalformedUser)
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return strconv.FormatInt(n, 10), nil
	}
	if raw == "" || node.IsNumeric() {
		return "", fmt.Errorf("%w: id %q is not an integer", ErrMalformedUser, raw)
	}
	return raw, nil
}

func optionalString(root *ajson.Node, key string) string {
	if !root.HasKey(key) {
		return ""
	}
	node, err := root.GetKey(key)
	if err != nil || !node.IsString() {
		return ""
	}
	s, _ := node.GetString()
	return s
}
