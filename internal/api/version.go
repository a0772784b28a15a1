// Package api provides the HTTP handlers of the certificate service.
package api

// APIVersion1 is the original API version
const (
	APIVersion1 = 1

	// CurrentAPIVersion is the highest API version supported by this server
	CurrentAPIVersion = APIVersion1
)

// APICapabilities describes the features available at each API version.
var APICapabilities = map[int][]string{
	APIVersion1: {
		"wallet-auth",
		"certificate-requests",
		"issuance",
		"ledger-commit",
		"legacy-routes",
	},
}

// StatusResponse is the response from the /status endpoint.
type StatusResponse struct {
	Status       string   `json:"status"`
	Service      string   `json:"service"`
	APIVersion   int      `json:"api_version"`
	Capabilities []string `json:"capabilities,omitempty"`
}
