// Package provisioning implements the storage-account provisioning manager:
// race-safe create-or-get of storage account records during OAuth linking,
// plus the bulk ensure and health-check maintenance jobs built on it.
package provisioning

import (
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Supported cloud storage providers.
const (
	ProviderGoogleDrive = "google_drive"
	ProviderDropbox     = "dropbox"
)

// SupportedProviders lists every provider the manager will provision for.
var SupportedProviders = []string{ProviderGoogleDrive, ProviderDropbox}

// dropboxEndpoint is not shipped in the x/oauth2 endpoint catalogue.
var dropboxEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.dropbox.com/oauth2/authorize",
	TokenURL: "https://api.dropboxapi.com/oauth2/token",
}

// NormalizeProvider canonicalizes a provider name for lookups and lock keys.
func NormalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// IsSupportedProvider reports whether the normalized provider is provisionable.
func IsSupportedProvider(provider string) bool {
	switch NormalizeProvider(provider) {
	case ProviderGoogleDrive, ProviderDropbox:
		return true
	}
	return false
}

// ProviderCredentials holds the OAuth client credentials for one provider.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
}

// OAuthConfig builds the oauth2 client config used to refresh and probe
// stored tokens for a provider. Returns nil for unsupported providers.
func OAuthConfig(provider string, creds ProviderCredentials) *oauth2.Config {
	var endpoint oauth2.Endpoint
	switch NormalizeProvider(provider) {
	case ProviderGoogleDrive:
		endpoint = google.Endpoint
	case ProviderDropbox:
		endpoint = dropboxEndpoint
	default:
		return nil
	}

	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     endpoint,
	}
}
