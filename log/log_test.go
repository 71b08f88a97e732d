package log

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

var (
	sampleLeaf     = 3
	sampleRoot     = []byte("123")
	sampleWindow   = []int64{10, 0, -10}
	sampleDuration = time.Second
	sampleTime     = time.Unix(12345678, 0)

	errSample = errors.New("some error")
)

func doLogs() {
	Infof("appended leaf %d to registry with root %x", sampleLeaf, sampleRoot)
	Debugw("interaction accepted", "kind", "post", "nullifiers", 2)
	Errorf("cannot commit nullifier batch: %v", errSample)
	Warnw("various types",
		"window", sampleWindow,
		"duration", sampleDuration,
		"time", sampleTime,
	)
	Errorw(errSample, "delivery failed")
}

func TestCheckInvalidChars(t *testing.T) {
	t.Cleanup(func() { panicOnInvalidChars = false })

	v := []byte{'h', 'e', 'l', 'l', 'o', 0xff, 'w', 'o', 'r', 'l', 'd'}
	panicOnInvalidChars = false
	Init("debug", "stderr", nil)
	Debugf("%s", v)
	// should not panic since env var is false. if it panics, test will fail

	// now enable panic and try again: should recover() and never reach t.Errorf()
	panicOnInvalidChars = true
	Init("debug", "stderr", nil)
	defer func() { recover() }()
	Debugf("%s", v)
	t.Errorf("Debugf(%s) should have panicked because of invalid char", v)
}

func TestErrorOutput(t *testing.T) {
	c := qt.New(t)
	t.Cleanup(func() { Init(LogLevelError, "stderr", nil) })

	var errOut bytes.Buffer
	logTestWriter = io.Discard
	Init(LogLevelDebug, logTestWriterName, &errOut)
	c.Assert(Level(), qt.Equals, LogLevelDebug)

	Infow("not an error", "key", "value")
	c.Assert(errOut.Len(), qt.Equals, 0)

	Errorw(errSample, "delivery failed", "attempt", 1)
	c.Assert(strings.Contains(errOut.String(), "delivery failed"), qt.IsTrue)
	c.Assert(strings.Contains(errOut.String(), errSample.Error()), qt.IsTrue)
}

func BenchmarkLogger(b *testing.B) {
	logTestWriter = io.Discard // to not grow a buffer
	Init("debug", logTestWriterName, nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		doLogs()
	}
}
