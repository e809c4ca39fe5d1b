package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFaultKinds(t *testing.T) {
	Convey("Given an integrity error", t, func() {
		err := fmt.Errorf("project: %w", &IntegrityError{Dim: 10, RecordID: "pred_1", Got: 9})

		Convey("Then it matches ErrIntegrity and not ErrCollaborator", func() {
			So(errors.Is(err, ErrIntegrity), ShouldBeTrue)
			So(errors.Is(err, ErrCollaborator), ShouldBeFalse)
			So(err.Error(), ShouldContainSubstring, "pred_1")

			var ie *IntegrityError
			So(errors.As(err, &ie), ShouldBeTrue)
			So(ie.Got, ShouldEqual, 9)
		})
	})

	Convey("Given a store failure wrapped as a collaborator failure", t, func() {
		err := Collaborator("store.last_n", context.DeadlineExceeded)

		Convey("Then both the kind and the cause are visible", func() {
			So(errors.Is(err, ErrCollaborator), ShouldBeTrue)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(err.Error(), ShouldStartWith, "store.last_n")
		})

		Convey("And wrapping again keeps the original", func() {
			So(Collaborator("service.classify", err), ShouldEqual, err)
		})
	})

	Convey("Given a nil error", t, func() {
		Convey("Then Collaborator returns nil", func() {
			So(Collaborator("op", nil), ShouldBeNil)
		})
	})

	Convey("Given caller and lookup errors", t, func() {
		invalid := Invalid(errors.New("image field missing"))
		missing := NotFound(errors.New("pred_x"))

		Convey("Then each carries exactly its kind", func() {
			So(errors.Is(invalid, ErrInvalidInput), ShouldBeTrue)
			So(errors.Is(invalid, ErrNotFound), ShouldBeFalse)
			So(errors.Is(missing, ErrNotFound), ShouldBeTrue)
			So(missing.Error(), ShouldEqual, "not found: pred_x")
		})

		Convey("Then kinds are never stacked", func() {
			So(NotFound(invalid), ShouldEqual, invalid)
			So(Collaborator("op", missing), ShouldEqual, missing)
			So(Invalid(nil), ShouldBeNil)
		})
	})
}
