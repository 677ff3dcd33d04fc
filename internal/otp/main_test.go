package otp

import (
	"os"
	"testing"

	"github.com/m3rciful/telelink/core/logger"
)

func TestMain(m *testing.M) {
	if err := logger.InitLogger(nil); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}
