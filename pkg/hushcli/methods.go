package hushcli

// Version returns the daemon's version string.
func (c *Client) Version() (string, error) {
	resp, err := invoke[VersionResponse](c, "system.getVersion", nil)
	if err != nil {
		return "", err
	}
	return resp.Version, nil
}

// AddProfile creates a new profile; it is armed immediately.
func (c *Client) AddProfile(p *AddProfileParams) (*Profile, error) {
	resp, err := invoke[AddProfileResponse](c, "profile.add", p)
	if err != nil {
		return nil, err
	}
	return &resp.Profile, nil
}

// ListProfiles returns every stored profile.
func (c *Client) ListProfiles() ([]Profile, error) {
	resp, err := invoke[ListProfilesResponse](c, "profile.list", nil)
	if err != nil {
		return nil, err
	}
	return resp.Profiles, nil
}

// EnableProfile re-activates a disabled profile and arms it.
func (c *Client) EnableProfile(id string) error {
	_, err := invoke[emptyResponse](c, "profile.enable", &idParam{ID: id})
	return err
}

// DisableProfile disarms a profile and reverts anything it engaged.
func (c *Client) DisableProfile(id string) error {
	_, err := invoke[emptyResponse](c, "profile.disable", &idParam{ID: id})
	return err
}

// RemoveProfile disables and deletes a profile.
func (c *Client) RemoveProfile(id string) error {
	_, err := invoke[emptyResponse](c, "profile.remove", &idParam{ID: id})
	return err
}

// ActiveTriggers returns the triggers currently holding the ringer.
func (c *Client) ActiveTriggers() ([]ActiveTrigger, error) {
	resp, err := invoke[ActiveResponse](c, "trigger.active", nil)
	if err != nil {
		return nil, err
	}
	return resp.Triggers, nil
}

// Usage returns activation statistics. sinceHours bounds the aggregation
// window; zero means all recorded history.
func (c *Client) Usage(sinceHours int) (*UsageSummary, error) {
	return invoke[UsageSummary](c, "usage.summary", &usageParams{SinceHours: sinceHours})
}

// UpdateLocation feeds a position fix to the daemon's geofence provider.
func (c *Client) UpdateLocation(lat, lng float64) error {
	_, err := invoke[emptyResponse](c, "location.update", &locationParams{Latitude: lat, Longitude: lng})
	return err
}
