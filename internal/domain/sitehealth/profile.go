package sitehealth

import "fmt"

// Profile is the device strategy a target is probed under.
type Profile string

const (
	ProfileMobile  Profile = "mobile"
	ProfileDesktop Profile = "desktop"
)

// Profiles returns every profile in probe order.
func Profiles() []Profile { return []Profile{ProfileMobile, ProfileDesktop} }

// String returns the wire name of the profile.
func (p Profile) String() string { return string(p) }

// ParseProfile converts a wire name into a Profile.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case ProfileMobile, ProfileDesktop:
		return Profile(s), nil
	default:
		return "", fmt.Errorf("unknown profile %q", s)
	}
}
