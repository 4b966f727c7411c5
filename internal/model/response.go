package model

// APIResponse is the single response envelope. Issuance endpoints populate
// AccessToken and User; errors carry only Message.
type APIResponse struct {
	Success     bool        `json:"success"`
	Message     string      `json:"message,omitempty"`
	AccessToken string      `json:"accessToken,omitempty"`
	User        *PublicUser `json:"user,omitempty"`
	Data        any         `json:"data,omitempty"`
}
