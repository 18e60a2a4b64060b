package domain

import "time"

// System is a registered downstream application that may receive system-scoped tokens.
type System struct {
	ID          string
	Code        string
	Name        string
	DisplayName string
	URL         string
	// Secret is the pre-shared secret used by direct system login and exchange redemption.
	Secret    string
	Enabled   bool
	CreatedAt time.Time
}

// Summary is the client-facing view of a System; it never carries the secret.
type Summary struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url,omitempty"`
}

// Summary returns the client-facing view of s.
func (s *System) Summary() Summary {
	return Summary{Code: s.Code, Name: s.Name, DisplayName: s.DisplayName, URL: s.URL}
}
