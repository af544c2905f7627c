package compressor

import (
	"bytes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestGzipCompressor(t *testing.T) {
	Convey("Given a GzipCompressor", t, func() {
		comp := NewGzip()

		Convey("Compress and Decompress", func() {
			Convey("When round-tripping a payload", func() {
				payload := bytes.Repeat([]byte("tenant data graph "), 200)

				compressed, err := comp.Compress(payload)

				Convey("It should compress and restore the original bytes", func() {
					So(err, ShouldBeNil)
					So(len(compressed), ShouldBeLessThan, len(payload))

					restored, err := comp.Decompress(compressed)
					So(err, ShouldBeNil)
					So(bytes.Equal(restored, payload), ShouldBeTrue)
				})
			})

			Convey("When compressing the same payload twice", func() {
				payload := []byte(`{"version":1,"tenant_id":"t1"}`)

				first, err1 := comp.Compress(payload)
				second, err2 := comp.Compress(payload)

				Convey("It should produce identical bytes", func() {
					So(err1, ShouldBeNil)
					So(err2, ShouldBeNil)
					So(bytes.Equal(first, second), ShouldBeTrue)
				})
			})

			Convey("When compressing an empty payload", func() {
				compressed, err := comp.Compress(nil)

				Convey("It should still round-trip", func() {
					So(err, ShouldBeNil)

					restored, err := comp.Decompress(compressed)
					So(err, ShouldBeNil)
					So(len(restored), ShouldEqual, 0)
				})
			})
		})

		Convey("Decompress with invalid input", func() {
			Convey("When the payload is not gzip", func() {
				_, err := comp.Decompress([]byte("definitely not gzip"))

				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to create gzip reader")
				})
			})
		})
	})
}
