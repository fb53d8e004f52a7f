// soundcloud.go -- SoundCloud provider: endpoints, scopes, and profile mapping.
package oauth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

// NewSoundCloud returns the SoundCloud provider client.
//
// SoundCloud quirks: the non-expiring scope yields tokens with no expires_in,
// the userinfo endpoint is /me with an "OAuth" (not "Bearer") Authorization
// scheme, the user id is numeric, and no email is ever reported -- the
// identity resolver synthesizes one for new SoundCloud accounts.
func NewSoundCloud(cfg Config) Provider {
	return &client{
		name: "soundcloud",
		cfg:  cfg,
		endpoints: endpoints{
			authURL:     "https://soundcloud.com/connect",
			tokenURL:    "https://api.soundcloud.com/oauth2/token",
			userInfoURL: "https://api.soundcloud.com/me",
		},
		scopes:     []string{"non-expiring"},
		authScheme: "OAuth",
		httpClient: &http.Client{Timeout: requestTimeout},
		mapProfile: mapSoundCloudProfile,
	}
}

// mapSoundCloudProfile reads the /me shape: id, username, full_name, avatar_url.
func mapSoundCloudProfile(body []byte) (*Profile, error) {
	var payload struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		FullName string `json:"full_name"`
		Avatar   string `json:"avatar_url"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.ID == 0 {
		return nil, errors.New("userinfo payload missing user id")
	}
	displayName := payload.FullName
	if displayName == "" {
		displayName = payload.Username
	}
	return &Profile{
		ProviderUserID: strconv.FormatInt(payload.ID, 10),
		DisplayName:    displayName,
		AvatarURL:      payload.Avatar,
	}, nil
}
