package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("NOTARIUM_TEST_MODE", "1")
		if os.Getenv("SIGNING_MODE") == "" {
			_ = os.Setenv("SIGNING_MODE", "placeholder")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
