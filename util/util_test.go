package util

import (
	"testing"

	"github.com/reelfeed/reelfeed/filesystem"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestQuantify(t *testing.T) {
	Convey("Quantify", t, func() {
		So(Quantify(1, "entry", "entries"), ShouldEqual, "1 entry")
		So(Quantify(2, "entry", "entries"), ShouldEqual, "2 entries")
		So(Quantify(0, "entry", "entries"), ShouldEqual, "0 entries")
	})
}

func TestCapitalize(t *testing.T) {
	Convey("Capitalize", t, func() {
		So(Capitalize("cache"), ShouldEqual, "Cache")
		So(Capitalize(""), ShouldEqual, "")
		So(Capitalize("X"), ShouldEqual, "X")
	})
}

func TestHumanBytes(t *testing.T) {
	Convey("HumanBytes", t, func() {
		So(HumanBytes(512), ShouldEqual, "512 B")
		So(HumanBytes(2048), ShouldEqual, "2.0 KiB")
		So(HumanBytes(50*1024*1024), ShouldEqual, "50.0 MiB")
	})
}

func TestMinMax(t *testing.T) {
	Convey("Min and Max", t, func() {
		So(Max(1, 3, 2), ShouldEqual, 3)
		So(Min(1, 3, 2), ShouldEqual, 1)
		So(Max[int](), ShouldEqual, 0)
	})
}

func TestDelete(t *testing.T) {
	Convey("Delete", t, func() {
		fs := filesystem.API()

		Convey("Should remove a file", func() {
			So(fs.WriteFile("/tmp-delete-me", []byte("x"), 0644), ShouldBeNil)
			So(Delete("/tmp-delete-me"), ShouldBeNil)
			exists, err := fs.Exists("/tmp-delete-me")
			So(err, ShouldBeNil)
			So(exists, ShouldBeFalse)
		})

		Convey("Should fail on a missing path", func() {
			So(Delete("/does-not-exist"), ShouldNotBeNil)
		})
	})
}
