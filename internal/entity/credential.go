package entity

// Credential is the current upstream access token and its paired refresh
// secret. The refresh secret may rotate on every refresh call.
type Credential struct {
	AccessToken  string
	RefreshToken string
}
