package feedparse

import "strings"

// mediaSlot names the story field an enclosure lands in.
type mediaSlot int

const (
	slotNone mediaSlot = iota
	slotPicture
	slotAudio
	slotVideo
)

var (
	pictureExts = []string{".jpg", ".jpeg", ".gif", ".png"}
	audioExts   = []string{".mp3", ".wav", ".m4a", ".aac"}
	videoExts   = []string{".mpg", ".mpeg", ".m4v", ".avi"}
)

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), sub)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// classifyMedia maps an enclosure URL and MIME type to a media slot.
// mp4 containers are ambiguous and routed by their MIME type.
func classifyMedia(url, mimeType string) mediaSlot {
	u := strings.ToLower(url)
	m := strings.ToLower(mimeType)

	switch {
	case containsAny(u, pictureExts):
		return slotPicture
	case containsAny(u, audioExts),
		strings.Contains(u, ".mp4") && strings.HasPrefix(m, "audio/"):
		return slotAudio
	case containsAny(u, videoExts),
		strings.Contains(u, ".mp4") && strings.HasPrefix(m, "video/"):
		return slotVideo
	default:
		return slotNone
	}
}

// isWebLink reports whether a link points at an HTML page rather than an
// enclosure, judged by extension or declared type.
func isWebLink(url, mimeType string) bool {
	u := strings.ToLower(url)
	m := strings.ToLower(mimeType)
	return strings.Contains(u, ".htm") ||
		strings.Contains(m, "text/html") ||
		strings.Contains(m, "application/xhtml+xml")
}

// weblinkTitle derives the display title of an untitled web link from
// its rel attribute.
func weblinkTitle(rel string) string {
	if strings.Contains(strings.ToLower(rel), "replies") {
		return "Replies"
	}
	return "Weblink"
}
