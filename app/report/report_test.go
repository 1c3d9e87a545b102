package report

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixedStats struct{}

func (fixedStats) Stats() (int, int64) { return 3, 2048 }
func (fixedStats) MaxEntries() int     { return 10 }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReport(t *testing.T) {
	var out syncBuffer
	r := &Reporter{
		Log:    slog.New(slog.NewTextHandler(&out, nil)),
		Source: fixedStats{},
	}

	r.Report()

	assert.Contains(t, out.String(), "entries=3")
	assert.Contains(t, out.String(), "max_entries=10")
	assert.Contains(t, out.String(), `attachments_size="2.0 KiB"`)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	r := &Reporter{
		Log:      slog.New(slog.DiscardHandler),
		Source:   fixedStats{},
		Schedule: "every now and then",
	}

	assert.Error(t, r.Start(context.Background()))
}

func TestStartStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Reporter{
		Log:      slog.New(slog.DiscardHandler),
		Source:   fixedStats{},
		Schedule: "@every 1h",
	}
	require.NoError(t, r.Start(ctx))

	cancel()
	r.Stop()
}
