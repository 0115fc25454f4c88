package model

import "time"

// FederationConfig holds the SSO realm settings. A single persisted row
// overrides the configured defaults as a whole; fields are never merged.
type FederationConfig struct {
	Enabled      bool      `json:"enabled"`
	ServerURL    string    `json:"serverUrl"`
	Realm        string    `json:"realm"`
	ClientID     string    `json:"clientId"`
	ClientSecret string    `json:"clientSecret"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// MailConfig holds outbound SMTP settings. Like FederationConfig, a
// persisted row replaces the environment defaults.
type MailConfig struct {
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Protocol  string    `json:"protocol"`
	Auth      bool      `json:"auth"`
	StartTLS  bool      `json:"starttls"`
	FromEmail string    `json:"fromEmail"`
	FromName  string    `json:"fromName"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
