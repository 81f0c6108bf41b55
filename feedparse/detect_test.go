package feedparse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/okrent/feedspool/model"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		expect model.FeedType
	}{
		{
			name:   "rss 2.0",
			body:   `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title></channel></rss>`,
			expect: model.TypeRSS,
		},
		{
			name: "rdf",
			body: `<?xml version="1.0"?><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"` +
				` xmlns="http://purl.org/rss/1.0/"><channel><title>t</title></channel></rdf:RDF>`,
			expect: model.TypeRDF,
		},
		{
			name:   "atom",
			body:   `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"><title>t</title></feed>`,
			expect: model.TypeAtom,
		},
		{
			name:   "empty body",
			body:   "",
			expect: model.TypeUnknown,
		},
		{
			name:   "whitespace body",
			body:   "   \n\t ",
			expect: model.TypeUnknown,
		},
		{
			name:   "html page",
			body:   `<html><body><p>not a feed</p></body></html>`,
			expect: model.TypeUnknown,
		},
		{
			name:   "malformed xml",
			body:   `<?xml version="1.0"?><bro`,
			expect: model.TypeUnknown,
		},
		{
			name:   "rss element nested below root",
			body:   `<?xml version="1.0"?><wrapper><rss version="2.0"><channel/></rss></wrapper>`,
			expect: model.TypeRSS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Detect([]byte(tt.body)))
		})
	}
}

func TestClassifyMedia(t *testing.T) {
	tests := []struct {
		url    string
		mime   string
		expect mediaSlot
	}{
		{"http://x/pic.jpg", "", slotPicture},
		{"http://x/pic.JPEG", "image/jpeg", slotPicture},
		{"http://x/pic.gif", "", slotPicture},
		{"http://x/pic.png", "", slotPicture},
		{"http://x/cast.mp3", "audio/mpeg", slotAudio},
		{"http://x/cast.wav", "", slotAudio},
		{"http://x/cast.m4a", "", slotAudio},
		{"http://x/cast.aac", "", slotAudio},
		{"http://x/clip.mp4", "audio/mp4", slotAudio},
		{"http://x/clip.mpg", "", slotVideo},
		{"http://x/clip.mpeg", "", slotVideo},
		{"http://x/clip.m4v", "", slotVideo},
		{"http://x/clip.avi", "", slotVideo},
		{"http://x/clip.mp4", "video/mp4", slotVideo},
		{"http://x/clip.mp4", "", slotNone},
		{"http://x/page.pdf", "application/pdf", slotNone},
	}

	for _, tt := range tests {
		t.Run(tt.url+" "+tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.expect, classifyMedia(tt.url, tt.mime))
		})
	}
}

func TestIsWebLink(t *testing.T) {
	assert.True(t, isWebLink("http://example.com/post.html", ""))
	assert.True(t, isWebLink("http://example.com/post.htm", ""))
	assert.True(t, isWebLink("http://example.com/post", "text/html"))
	assert.True(t, isWebLink("http://example.com/post", "application/xhtml+xml"))
	assert.False(t, isWebLink("http://example.com/cast.mp3", "audio/mpeg"))
}

func TestWeblinkTitle(t *testing.T) {
	assert.Equal(t, "Weblink", weblinkTitle("alternate"))
	assert.Equal(t, "Replies", weblinkTitle("replies"))
	assert.Equal(t, "Weblink", weblinkTitle(""))
	assert.Equal(t, "Weblink", weblinkTitle("self"))
}
