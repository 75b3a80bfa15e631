package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyFromURL(t *testing.T) {
	const def = "/images/icon.png"
	cases := map[string]string{
		"":                                       "",
		"   ":                                    "",
		def:                                      "",
		"http://minio:9000/ff-menu-images/a.jpg": "a.jpg",
		"https://cdn.example.com/b.png?x=1":      "b.png",
		"c.webp":                                 "c.webp",
	}
	for in, want := range cases {
		assert.Equal(t, want, KeyFromURL(in, def), in)
	}
}
