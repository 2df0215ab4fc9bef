package feed

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestKey(t *testing.T) {
	Convey("Resource key canonicalization", t, func() {
		Convey("Should map the same logical resource to the same key", func() {
			a := Key("https://CDN.Example.com:443/v/clip.mp4?token=abc&q=hd")
			b := Key("https://cdn.example.com/v/clip.mp4?q=hd&token=xyz#t=3")
			So(a, ShouldEqual, b)
		})

		Convey("Should strip volatile query parameters", func() {
			k := Key("https://cdn.example.com/clip.mp4?signature=s&expires=123")
			So(k, ShouldEqual, "https://cdn.example.com/clip.mp4")
		})

		Convey("Should keep meaningful query parameters in sorted order", func() {
			k := Key("https://cdn.example.com/clip.mp4?quality=720&codec=h264")
			So(k, ShouldEqual, "https://cdn.example.com/clip.mp4?codec=h264&quality=720")
		})

		Convey("Should strip default ports", func() {
			So(Key("http://example.com:80/x"), ShouldEqual, "http://example.com/x")
			So(Key("https://example.com:443/x"), ShouldEqual, "https://example.com/x")
		})

		Convey("Should return unparseable input verbatim", func() {
			So(Key("not a url"), ShouldEqual, "not a url")
		})
	})
}
