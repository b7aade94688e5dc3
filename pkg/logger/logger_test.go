package logger_test

import (
	"context"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/reverse-proxy/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("should create a logger", func() {
			log := logger.New("info", false, "dev")
			Expect(log).NotTo(BeNil())
		})

		DescribeTable("level parsing",
			func(level string, enabled slog.Level, disabled slog.Level) {
				log := logger.New(level, false, "dev")
				Expect(log.Enabled(context.Background(), enabled)).To(BeTrue())
				Expect(log.Enabled(context.Background(), disabled)).To(BeFalse())
			},
			Entry("debug", "debug", slog.LevelDebug, slog.Level(-8)),
			Entry("info", "info", slog.LevelInfo, slog.LevelDebug),
			Entry("warn", "warn", slog.LevelWarn, slog.LevelInfo),
			Entry("error", "error", slog.LevelError, slog.LevelWarn),
		)

		It("should default unknown levels to info", func() {
			log := logger.New("loud", false, "dev")
			Expect(log.Enabled(context.Background(), slog.LevelInfo)).To(BeTrue())
			Expect(log.Enabled(context.Background(), slog.LevelDebug)).To(BeFalse())
		})
	})
})
