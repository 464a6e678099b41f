package hushcli

// AddProfileParams describes a new profile for profile.add.
type AddProfileParams struct {
	Name          string  `json:"name"`
	Kind          string  `json:"kind"`
	StartClock    string  `json:"startClock,omitempty"`
	EndClock      string  `json:"endClock,omitempty"`
	CronExpr      string  `json:"cronExpr,omitempty"`
	WindowMinutes int     `json:"windowMinutes,omitempty"`
	Latitude      float64 `json:"latitude,omitempty"`
	Longitude     float64 `json:"longitude,omitempty"`
	RadiusMeters  float64 `json:"radiusMeters,omitempty"`
	Keyword       string  `json:"keyword,omitempty"`
	BusyOnly      bool    `json:"busyOnly,omitempty"`
	PreStartMin   int     `json:"preStartMin,omitempty"`
	Mode          string  `json:"mode"`
	Actions       string  `json:"actions,omitempty"`
}

// Profile is one profile as reported by the daemon.
type Profile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Mode    string `json:"mode"`
	Actions string `json:"actions,omitempty"`
	Active  bool   `json:"active"`
}

// AddProfileResponse is the result of profile.add.
type AddProfileResponse struct {
	Profile Profile `json:"profile"`
}

// ListProfilesResponse is the result of profile.list.
type ListProfilesResponse struct {
	Profiles []Profile `json:"profiles"`
}

// VersionResponse is the result of system.getVersion.
type VersionResponse struct {
	Version string `json:"version"`
}

// ActiveTrigger is one engaged trigger in trigger.active results.
type ActiveTrigger struct {
	Key       string `json:"key"`
	Mode      string `json:"mode"`
	WindowEnd int64  `json:"windowEnd,omitempty"`
	EngagedAt int64  `json:"engagedAt"`
}

// ActiveResponse is the result of trigger.active.
type ActiveResponse struct {
	Triggers []ActiveTrigger `json:"triggers"`
}

// ProfileCount pairs a profile name with its activation count.
type ProfileCount struct {
	ProfileID   string `json:"profileId"`
	ProfileName string `json:"profileName"`
	Activations int    `json:"activations"`
}

// UsageSummary is the result of usage.summary.
type UsageSummary struct {
	TotalActivations int            `json:"totalActivations"`
	ByMode           map[string]int `json:"byMode,omitempty"`
	PeakHour         int            `json:"peakHour"`
	TopProfiles      []ProfileCount `json:"topProfiles,omitempty"`
}

type idParam struct {
	ID string `json:"id"`
}

type usageParams struct {
	SinceHours int `json:"sinceHours,omitempty"`
}

type locationParams struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type emptyResponse struct{}
