package secrets

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrNotConfigured is returned when neither a file nor an inline value is set.
var ErrNotConfigured = errors.New("secret is not configured")

// Source describes how to load a secret value.
type Source struct {
	// Name is used in error messages.
	Name string
	// Value is an inline secret from config or env.
	Value string
	// File points to a file holding the secret. It wins over Value.
	File string
}

// Load resolves the secret from src. The result is always trimmed.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	file := strings.TrimSpace(src.File)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", errors.Wrapf(err, "reading %s from file %q", name, file)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", errors.Newf("%s file %q is empty", name, file)
		}
		return secret, nil
	}

	secret := strings.TrimSpace(src.Value)
	if secret == "" {
		return "", errors.Wrapf(ErrNotConfigured, "%s", name)
	}
	return secret, nil
}
