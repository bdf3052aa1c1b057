package frame_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndimixer/mixer/pkg/frame"
)

func TestMailboxLatestWins(t *testing.T) {
	var mb frame.Mailbox

	_, ok := mb.TryTake()
	require.False(t, ok, "empty mailbox should report no value")

	for i := 0; i < 5; i++ {
		f := frame.NewFrame(2, 2, frame.FormatBGRA8)
		f.Pix[0] = byte(i)
		mb.Publish(f)
	}

	got, ok := mb.TryTake()
	require.True(t, ok)
	assert.Equal(t, byte(4), got.Pix[0], "mailbox must return the kth value and discard prior writes")

	_, ok = mb.TryTake()
	assert.False(t, ok, "mailbox must be empty after a single take")
	assert.Equal(t, uint64(5), mb.Count())
}

func TestMailboxNeverBlocks(t *testing.T) {
	var mb frame.Mailbox

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			mb.Publish(frame.NewFrame(1, 1, frame.FormatBGRA8))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish should never block on a slow/absent consumer")
	}
}
