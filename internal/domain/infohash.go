package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// InfoHash is a BitTorrent v1 info hash in canonical form: exactly 40
// lowercase hexadecimal characters. The zero value is invalid.
type InfoHash string

func (h InfoHash) String() string { return string(h) }

func (h InfoHash) IsZero() bool { return h == "" }

// Magnet returns a minimal magnet link carrying only the hash. Used
// when a caller supplies a bare content identifier instead of a full
// magnet URI.
func (h InfoHash) Magnet() string { return "magnet:?xt=urn:btih:" + string(h) }

const infoHashHexLen = 40

// ParseInfoHash normalizes a raw identifier into a canonical InfoHash.
// It accepts a bare 40-char hex string or one prefixed with "urn:btih:",
// in any letter case, with surrounding whitespace ignored.
func ParseInfoHash(raw string) (InfoHash, error) {
	s := strings.TrimSpace(raw)
	if prefixLen := len("urn:btih:"); len(s) >= prefixLen && strings.EqualFold(s[:prefixLen], "urn:btih:") {
		s = s[prefixLen:]
	}
	if len(s) != infoHashHexLen {
		return "", fmt.Errorf("%w: want %d hex chars, got %d", ErrInvalidInfoHash, infoHashHexLen, len(s))
	}
	s = strings.ToLower(s)
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: non-hex character %q", ErrInvalidInfoHash, c)
		}
	}
	return InfoHash(s), nil
}

// ParseMagnet extracts the info hash and optional display name from a
// magnet link. Only the "xt" and "dn" parameters are consulted.
func ParseMagnet(raw string) (InfoHash, string, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(strings.ToLower(s), "magnet:?") {
		return "", "", fmt.Errorf("%w: not a magnet link", ErrInvalidInfoHash)
	}
	values, err := url.ParseQuery(s[len("magnet:?"):])
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidInfoHash, err)
	}

	var hash InfoHash
	for _, xt := range values["xt"] {
		parsed, parseErr := ParseInfoHash(xt)
		if parseErr == nil {
			hash = parsed
			break
		}
	}
	if hash.IsZero() {
		return "", "", fmt.Errorf("%w: magnet link has no btih xt parameter", ErrInvalidInfoHash)
	}

	return hash, strings.TrimSpace(values.Get("dn")), nil
}
