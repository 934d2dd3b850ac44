package service

import (
	"testing"

	"go.uber.org/goleak"
)

// 工作池必须随 Stop 干净退出，不遗留 goroutine
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
