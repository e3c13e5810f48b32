package model_test

import (
	"errors"
	"testing"

	"github.com/okian/evpulse/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestOutcome(t *testing.T) {
	convey.Convey("Given outcomes of a fan-out", t, func() {
		boom := errors.New("boom")
		outs := []model.Outcome[int]{
			{DeviceID: "a", Value: 1},
			{DeviceID: "b", Err: boom},
			{DeviceID: "c", Value: 3},
		}

		convey.Convey("Then OK reflects the error", func() {
			convey.So(outs[0].OK(), convey.ShouldBeTrue)
			convey.So(outs[1].OK(), convey.ShouldBeFalse)
		})

		convey.Convey("Then Values keeps successful values in order", func() {
			convey.So(model.Values(outs), convey.ShouldResemble, []int{1, 3})
		})

		convey.Convey("Then Failed counts errors", func() {
			convey.So(model.Failed(outs), convey.ShouldEqual, 1)
		})

		convey.Convey("When there are no outcomes", func() {
			convey.So(model.Values([]model.Outcome[int]{}), convey.ShouldBeEmpty)
			convey.So(model.Failed[int](nil), convey.ShouldEqual, 0)
		})
	})
}
