package types

import "strings"

// Platform identifies the ad network a campaign runs on.
type Platform string

const (
	PlatformMeta   Platform = "meta"
	PlatformGoogle Platform = "google"
	PlatformTikTok Platform = "tiktok"
)

func ParsePlatform(raw string) (Platform, bool) {
	switch Platform(strings.ToLower(strings.TrimSpace(raw))) {
	case PlatformMeta:
		return PlatformMeta, true
	case PlatformGoogle:
		return PlatformGoogle, true
	case PlatformTikTok:
		return PlatformTikTok, true
	}
	return "", false
}

func (p Platform) String() string { return string(p) }
