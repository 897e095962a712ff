package config_test

import (
	"testing"
	"time"

	"github.com/okian/syncgaze/internal/config"
	"github.com/okian/syncgaze/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should carry the protocol defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.RecalibrationThresholdPx, convey.ShouldEqual, 80)
			convey.So(cfg.DwellRadiusPx, convey.ShouldEqual, 150)
			convey.So(cfg.StabilityWarningPx, convey.ShouldEqual, 50)
			convey.So(cfg.ValidationWindow(), convey.ShouldEqual, 3*time.Second)
			convey.So(cfg.PursuitDuration(), convey.ShouldEqual, 20*time.Second)
			convey.So(cfg.GazeSampleInterval(), convey.ShouldEqual, 100*time.Millisecond)
			convey.So(cfg.ClicksPerPoint, convey.ShouldEqual, 3)
			convey.So(cfg.TargetLookbackMS, convey.ShouldEqual, 1000)
			convey.So(cfg.SampleLookbackMS, convey.ShouldEqual, 500)
			convey.So(cfg.UploadRetries, convey.ShouldEqual, 3)
			convey.So(cfg.UploadRetryDelay(), convey.ShouldEqual, 2*time.Second)
		})

		convey.Convey("And the defaults should validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
			convey.So(cfg.Viewport(), convey.ShouldResemble, model.Viewport{Width: 1920, Height: 1080})
		})
	})
}
