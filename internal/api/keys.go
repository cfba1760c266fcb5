package api

import (
	"crypto/subtle"
	"errors"
	"strings"

	"agenda/internal/config"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	permReadAvailability  = "read:availability"
	permReadAgenda        = "read:agenda"
	permWriteBookings     = "write:bookings"
	permWriteBlocks       = "write:blocks"
	permWriteProviders    = "write:providers"
	permReadHealth        = "read:health"
	clientKeyUnknown      = "unknown"
)

var (
	errMissingKey       = errors.New("missing api key headers")
	errInvalidKey       = errors.New("invalid api key")
	errInvalidExtra     = errors.New("invalid extra header")
	errPermissionDenied = errors.New("permission denied")
)

// keyring holds the configured API clients for both transports.
type keyring struct {
	apiKeyHeader string
	extraHeader  string
	clients      map[string]config.APIClientKey
}

func newKeyring(cfg config.APIAuthConfig) keyring {
	m := make(map[string]config.APIClientKey, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		m[k.Key] = k
	}
	return keyring{
		apiKeyHeader: headerOrDefault(cfg.HeaderAPIKey, apiKeyHeaderDefault),
		extraHeader:  headerOrDefault(cfg.HeaderExtra, apiExtraHeaderDefault),
		clients:      m,
	}
}

// verify checks the key pair and that the client holds the required permission.
func (k keyring) verify(apiKey, extra, required string) (config.APIClientKey, error) {
	apiKey, extra = strings.TrimSpace(apiKey), strings.TrimSpace(extra)
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingKey
	}

	client, ok := k.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}
	if !hasPermission(client, required) {
		return config.APIClientKey{}, errPermissionDenied
	}
	return client, nil
}

// hasPermission treats an empty permission list as allow-all.
func hasPermission(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func headerOrDefault(header, def string) string {
	header = strings.TrimSpace(strings.ToLower(header))
	if header == "" {
		return def
	}
	return header
}
