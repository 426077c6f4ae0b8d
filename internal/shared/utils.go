// Package shared holds constants, error types and helpers used across the filter.
package shared

import (
	"fmt"
	"os"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/labstack/echo/v4"
)

const exchangeIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewExchangeID returns a random id of the form ex_<28 chars>.
func NewExchangeID() string {
	id, err := nanoid.Generate(exchangeIDAlphabet, 28)
	if err != nil {
		return "ex_unknown"
	}
	return "ex_" + id
}

func SafeEnv(env string) (string, error) {
	res, present := os.LookupEnv(env)
	if !present {
		return "", fmt.Errorf("missing environment variable %s", env)
	}
	return res, nil
}

func GetEnv(env, fallback string) string {
	if value, ok := os.LookupEnv(env); ok {
		return value
	}
	return fallback
}

func ExtractAPIKey(c echo.Context) (string, error) {
	auth := c.Request().Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingAuth
	}

	parts := strings.Split(auth, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", ErrInvalidFormat
	}
	return parts[1], nil
}
