package transforms

import (
	"strconv"
	"strings"

	"media-forge/internal/apperrors"
	"media-forge/internal/process"
)

func argInt(args process.Args, key string, def int) (int, error) {
	raw, ok := args[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, apperrors.Userf("Invalid value for %s: %q is not a whole number.", key, raw)
	}
	return v, nil
}

func argFloat(args process.Args, key string, def float64) (float64, error) {
	raw, ok := args[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, apperrors.Userf("Invalid value for %s: %q is not a number.", key, raw)
	}
	return v, nil
}

func requireFloat(args process.Args, key string) (float64, error) {
	if strings.TrimSpace(args[key]) == "" {
		return 0, apperrors.Userf("Missing required argument %s.", key)
	}
	return argFloat(args, key, 0)
}
