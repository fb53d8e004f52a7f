// google.go -- Google provider: endpoints, scopes, and profile mapping.
package oauth

import (
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
)

// NewGoogle returns the Google provider client.
//
// access_type=offline plus prompt=consent makes Google issue a refresh token
// on every authorization, not just the first -- without these the token
// custodian would have nothing to refresh with.
func NewGoogle(cfg Config) Provider {
	return &client{
		name: "google",
		cfg:  cfg,
		endpoints: endpoints{
			authURL:     "https://accounts.google.com/o/oauth2/v2/auth",
			tokenURL:    "https://oauth2.googleapis.com/token",
			userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		},
		scopes: []string{"openid", "email", "profile"},
		authParams: []oauth2.AuthCodeOption{
			oauth2.SetAuthURLParam("access_type", "offline"),
			oauth2.SetAuthURLParam("prompt", "consent"),
		},
		authScheme: "Bearer",
		httpClient: &http.Client{Timeout: requestTimeout},
		mapProfile: mapGoogleProfile,
	}
}

// mapGoogleProfile reads the oauth2/v2 userinfo shape: id, email, name, picture.
func mapGoogleProfile(body []byte) (*Profile, error) {
	var payload struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.ID == "" {
		return nil, errors.New("userinfo payload missing user id")
	}
	return &Profile{
		ProviderUserID: payload.ID,
		Email:          payload.Email,
		DisplayName:    payload.Name,
		AvatarURL:      payload.Picture,
	}, nil
}
