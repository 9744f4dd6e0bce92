package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Identity is the token bundle returned by the server's identity endpoint.
type Identity struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// FetchIdentity requests an identity token for the given display name.
func FetchIdentity(ctx context.Context, identityURL, name string) (Identity, error) {
	var identity Identity

	endpoint, err := url.Parse(identityURL)
	if err != nil {
		return identity, err
	}
	query := endpoint.Query()
	query.Set("user", name)
	endpoint.RawQuery = query.Encode()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return identity, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return identity, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return identity, fmt.Errorf("identity endpoint returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return identity, err
	}
	return identity, nil
}
