package collector

import "regexp"

// videoIDPattern matches the numeric video ID segment of a canonical video
// URL, e.g. https://www.tiktok.com/@user/video/1234567890 -> 1234567890.
var videoIDPattern = regexp.MustCompile(`/video/(\d+)`)

// ExtractVideoID derives the external video ID from a canonical video URL.
// This is the fixed parsing rule behind the deduplication key. Returns an
// empty string when the URL carries no video ID segment.
func ExtractVideoID(url string) string {
	match := videoIDPattern.FindStringSubmatch(url)
	if match == nil {
		return ""
	}
	return match[1]
}
