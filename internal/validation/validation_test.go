package validation_test

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/visiontags/internal/validation"
)

type listener struct {
	Addr  string            `koanf:"addr" validate:"required"`
	Burst int               `koanf:"burst" validate:"gte=0"`
	Mode  string            `koanf:"mode" validate:"oneof=fast slow"`
	Peers map[string]peer   `koanf:"peers" validate:"dive"`
	Tags  map[string]string `json:"tags"`
}

type peer struct {
	Kind string `koanf:"kind" validate:"oneof=local remote"`
	URL  string `koanf:"url" validate:"required_if=Kind remote"`
}

type note struct {
	Text string `json:"text" validate:"required,max=8,no_null_bytes"`
}

func TestStruct(t *testing.T) {
	Convey("Given tagged structs", t, func() {
		Convey("When every rule holds", func() {
			err := validation.Struct(listener{Addr: ":80", Mode: "fast", Peers: map[string]peer{"a": {Kind: "local"}}})

			Convey("Then no error is returned", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When several rules fail", func() {
			err := validation.Struct(listener{Burst: -1, Mode: "warp"})

			Convey("Then every failure is reported under its config key", func() {
				So(errors.Is(err, validation.ErrInvalid), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "addr is required")
				So(err.Error(), ShouldContainSubstring, "burst must be greater than or equal to 0")
				So(err.Error(), ShouldContainSubstring, "mode must be one of: fast slow")
			})
		})

		Convey("When a nested map value breaks a conditional rule", func() {
			err := validation.Struct(listener{Addr: ":80", Mode: "slow", Peers: map[string]peer{"far": {Kind: "remote"}}})

			Convey("Then the path names the map key", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "peers[far].url is required")
			})
		})

		Convey("When a JSON field holds a NULL byte or is too long", func() {
			nul := validation.Struct(note{Text: "a\x00b"})
			long := validation.Struct(note{Text: "far too long"})

			Convey("Then the JSON name is reported", func() {
				So(nul.Error(), ShouldContainSubstring, "text must not contain NULL bytes")
				So(long.Error(), ShouldContainSubstring, "text must be at most 8")
			})
		})
	})
}
