package web_test

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capturingLineHandler struct {
	mu    sync.Mutex
	lines []string
}

func (clh *capturingLineHandler) HandleLine(line []byte) {
	clh.mu.Lock()
	defer clh.mu.Unlock()
	clh.lines = append(clh.lines, string(line))
}

func (clh *capturingLineHandler) Lines() []string {
	clh.mu.Lock()
	defer clh.mu.Unlock()
	return append([]string(nil), clh.lines...)
}

func testContext(t *testing.T) (context.Context, func()) {
	ctxTest, completeTest := context.WithTimeout(context.Background(), 1100*time.Millisecond)
	go func() {
		after := time.NewTimer(1 * time.Second)
		select {
		case <-ctxTest.Done():
			after.Stop()
		case <-after.C:
			panic("test timed out: " + t.Name())
		}
	}()
	return ctxTest, completeTest
}
