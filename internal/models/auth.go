package models

// AuthContext identifies the establishment behind an authenticated request.
type AuthContext struct {
	EstablishmentID string
}

type TokenResponse struct {
	AccessToken string `json:"token"`
	ExpiresIn   int    `json:"expiresIn"`
	TokenType   string `json:"tokenType"`
}
