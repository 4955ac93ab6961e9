package urlutil

import (
	"net/url"
	"strings"
)

// AudioPath is the companion audio endpoint exposed by supported cameras.
const AudioPath = "/audio"

// IsMJPEG reports whether a source URL should be served through the direct
// MJPEG proxy instead of a transcode pipeline. The heuristic is coarse on
// purpose: a path containing "mjpg"/"mjpeg", or any plain-HTTP URL, takes
// the proxy path. Downstream behavior (audio derivation, health-check
// cadence) depends on this exact boundary, so do not tighten it.
func IsMJPEG(rawURL string) bool {
	lower := strings.ToLower(rawURL)

	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.Contains(lower, "mjpg") || strings.Contains(lower, "mjpeg")
	}

	path := strings.ToLower(u.Path)
	if strings.Contains(path, "mjpg") || strings.Contains(path, "mjpeg") {
		return true
	}
	return strings.ToLower(u.Scheme) == "http"
}

// DeriveAudioURL rewrites a camera's video URL into its companion audio
// endpoint, preserving scheme, host, port and embedded credentials. It
// returns "" when the source is not a parseable absolute URL; callers treat
// that as "no audio available" rather than an error.
func DeriveAudioURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	u.Path = AudioPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// IsRTSP reports whether the source needs RTSP transport tuning.
func IsRTSP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.ToLower(u.Scheme) == "rtsp"
}
