// Package providers builds provider adapters from configured credentials.
package providers

import (
	"errors"
	"fmt"
	"strings"

	"onedl/internal"
	"onedl/providers/alldebrid"
	"onedl/providers/premiumize"
	"onedl/providers/realdebrid"
	"onedl/providers/torbox"
	"onedl/utils"
)

// ErrUnsupportedProvider is returned for provider names without an adapter
var ErrUnsupportedProvider = errors.New("unsupported provider")

// ErrNoProviders is returned when no provider has a token configured
var ErrNoProviders = errors.New("no providers configured")

// New creates the adapter for one credential. A nil httpClient gets the
// default client.
func New(cred internal.ProviderCredential, httpClient *utils.HTTPClient) (internal.Provider, error) {
	if strings.TrimSpace(cred.Token) == "" {
		return nil, fmt.Errorf("%s: empty token", cred.Name)
	}

	switch cred.Name {
	case internal.ProviderRealDebrid:
		return realdebrid.New(cred.Token, httpClient), nil
	case internal.ProviderAllDebrid:
		return alldebrid.New(cred.Token, httpClient), nil
	case internal.ProviderPremiumize:
		return premiumize.New(cred.Token, httpClient), nil
	case internal.ProviderTorBox:
		return torbox.New(cred.Token, httpClient), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cred.Name)
	}
}

// FromConfig builds every configured provider in provider_order. All
// adapters share one HTTP client so the request pacer applies globally.
func FromConfig(cfg *internal.Config, httpClient *utils.HTTPClient) ([]internal.Provider, error) {
	if httpClient == nil {
		httpClient = utils.NewHTTPClientFromConfig(cfg)
	}

	creds := cfg.Credentials()
	if len(creds) == 0 {
		return nil, ErrNoProviders
	}

	result := make([]internal.Provider, 0, len(creds))
	for _, cred := range creds {
		p, err := New(cred, httpClient)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

// Filter keeps the providers named in names, in the order of names.
// An empty names returns all providers unchanged.
func Filter(all []internal.Provider, names []string) ([]internal.Provider, error) {
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]internal.Provider, len(all))
	for _, p := range all {
		byName[p.Name()] = p
	}

	var result []internal.Provider
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s is unknown or has no token", ErrUnsupportedProvider, name)
		}
		result = append(result, p)
	}
	return result, nil
}

// FolderLister returns the first provider able to enumerate cloud
// folders, or nil.
func FolderLister(all []internal.Provider) internal.FolderLister {
	for _, p := range all {
		if lister, ok := p.(internal.FolderLister); ok {
			return lister
		}
	}
	return nil
}
