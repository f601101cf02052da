package entity

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// ProductionDataOrigin is the canonical origin serving the published price tree.
const ProductionDataOrigin = "https://spot.utilitarian.io"

// ErrInvalidZone is returned when a zone identifier fails validation.
var ErrInvalidZone = errors.New("invalid zone identifier")

var zonePattern = regexp.MustCompile(`^[A-Z0-9_-]{2,32}$`)

// NormalizeZone upper-cases and validates a bidding zone identifier.
func NormalizeZone(raw string) (string, error) {
	zone := strings.ToUpper(strings.TrimSpace(raw))
	if !zonePattern.MatchString(zone) {
		return "", errors.Wrapf(ErrInvalidZone, "%q", raw)
	}

	return zone, nil
}

// OriginPreset classifies where price data is fetched from.
type OriginPreset string

const (
	// OriginPresetRemote pins the data origin to the production host.
	OriginPresetRemote OriginPreset = "remote"
	// OriginPresetLocal means "same origin as the serving page" (empty origin).
	OriginPresetLocal OriginPreset = "local"
	// OriginPresetCustom keeps an operator-supplied origin, e.g. a tunnel.
	OriginPresetCustom OriginPreset = "custom"
)

// WatchState is the single authoritative record of what is being observed.
// The background sync worker is its only writer; every update replaces the
// whole record.
type WatchState struct {
	Zone          *string      `json:"zone"`
	LastTimestamp *string      `json:"lastTimestamp"`
	DataOrigin    string       `json:"dataOrigin"`
	OriginPreset  OriginPreset `json:"originPreset"`
}

// NewWatchState returns the first-run state: nothing watched, production data.
func NewWatchState() WatchState {
	return WatchState{
		DataOrigin:   ProductionDataOrigin,
		OriginPreset: OriginPresetRemote,
	}
}

// Watching reports whether a zone is currently being observed.
func (s WatchState) Watching() bool {
	return s.Zone != nil && *s.Zone != ""
}

// WatchingZone reports whether the given zone is the one currently observed.
func (s WatchState) WatchingZone(zone string) bool {
	return s.Zone != nil && *s.Zone == zone
}

// WithZone returns a copy of the state watching newZone. LastTimestamp only
// survives a change to a different zone when the caller supplies a fresh
// value for that zone; otherwise it resets so the next poll re-announces.
func (s WatchState) WithZone(newZone *string, supplied *string) WatchState {
	next := s
	next.Zone = newZone

	switch {
	case newZone == nil:
		next.LastTimestamp = nil
	case s.Zone != nil && *s.Zone == *newZone && supplied == nil:
		// Same zone, keep what we already announced.
	default:
		next.LastTimestamp = supplied
	}

	return next
}

// WithTimestamp returns a copy of the state with LastTimestamp set.
func (s WatchState) WithTimestamp(ts string) WatchState {
	next := s
	next.LastTimestamp = &ts

	return next
}

// NormalizeOrigin turns an arbitrary user-supplied string into a well-formed
// origin. A missing scheme defaults to https, trailing slashes are dropped,
// and unparsable input falls back to previous. Idempotent: normalizing an
// already-normalized origin returns it unchanged.
func NormalizeOrigin(raw, previous string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return ""
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return previous
	}

	return parsed.Scheme + "://" + parsed.Host
}

// ResolveOrigin applies the canonical preset resolution rule: "local" forces
// an empty origin, "remote" forces the production origin, anything else is
// "custom" and keeps the normalized supplied origin. When no hint is given
// the preset is classified from the normalized origin itself, so applying
// the resolution twice yields the same result.
func ResolveOrigin(raw string, hint OriginPreset, previous string) (string, OriginPreset) {
	switch hint {
	case OriginPresetLocal:
		return "", OriginPresetLocal
	case OriginPresetRemote:
		return ProductionDataOrigin, OriginPresetRemote
	}

	origin := NormalizeOrigin(raw, previous)
	switch origin {
	case "":
		return "", OriginPresetLocal
	case ProductionDataOrigin:
		return ProductionDataOrigin, OriginPresetRemote
	default:
		return origin, OriginPresetCustom
	}
}
