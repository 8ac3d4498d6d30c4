package cfg

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/spf13/afero"
)

// TokenEnvVar is the name of the environment variable that can contain the
// GitHub API token.
const TokenEnvVar = "FORKPR_GITHUB_TOKEN"

// ErrInvalidToken is returned when a token contains whitespace characters.
var ErrInvalidToken = errors.New("token contains whitespace characters")

// ResolveToken returns the first non-empty value of candidates.
// If the value is the path of an existing file, the trimmed content of the
// file is returned instead.
// An empty string is returned if all candidates are empty.
func ResolveToken(fs afero.Fs, candidates ...string) (string, error) {
	var val string

	for _, c := range candidates {
		if c != "" {
			val = c
			break
		}
	}

	if val == "" {
		return "", nil
	}

	token, err := readTokenFile(fs, val)
	if err != nil {
		return "", err
	}

	if strings.IndexFunc(token, unicode.IsSpace) != -1 {
		return "", ErrInvalidToken
	}

	return token, nil
}

func readTokenFile(fs afero.Fs, val string) (string, error) {
	fi, err := fs.Stat(val)
	if err != nil || fi.IsDir() {
		return strings.TrimSpace(val), nil //nolint:nilerr // val is the token
	}

	content, err := afero.ReadFile(fs, val)
	if err != nil {
		return "", fmt.Errorf("reading token file %s failed: %w", val, err)
	}

	return strings.TrimSpace(string(content)), nil
}
