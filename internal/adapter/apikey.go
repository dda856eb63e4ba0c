package adapter

import (
	"os"
	"strings"

	"dev.aicounsel.server/internal/aierrors"
)

// ResolveAPIKey expands a "${ENV_NAME}" reference from config.yaml into
// its environment variable value. required distinguishes the two
// failure modes: a required key that is empty or unset is a validation
// error, while an optional key degrades to the empty string (the
// adapter is still built and sends its requests without a key).
func ResolveAPIKey(raw string, required bool) (string, error) {
	if raw == "" {
		if required {
			return "", aierrors.NewValidationError("api_key", "required API key reference is empty")
		}
		return "", nil
	}
	if !strings.HasPrefix(raw, "${") || !strings.HasSuffix(raw, "}") {
		return raw, nil // literal key, not an env reference
	}
	envName := strings.TrimSuffix(strings.TrimPrefix(raw, "${"), "}")
	value := os.Getenv(envName)
	if value == "" && required {
		return "", aierrors.NewValidationError("api_key", "environment variable \""+envName+"\" is not set")
	}
	return value, nil
}
