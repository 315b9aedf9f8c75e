package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrChannelBusy indicates a playback is already running on the channel.
var ErrChannelBusy = errors.New("audio channel busy")

// chunkSize is 100ms of PCM16 mono audio at 24kHz.
const chunkSize = 4800

// Opener acquires an audio output. The output is closed after each playback.
type Opener func() (io.WriteCloser, error)

// Channel serializes playback onto one output. The output is acquired
// lazily when a playback starts and released when it ends; a second
// playback while one is running fails with ErrChannelBusy.
type Channel struct {
	mu   sync.Mutex
	open Opener
}

// NewChannel creates a channel playing to outputs returned by open.
func NewChannel(open Opener) *Channel {
	return &Channel{open: open}
}

// Play writes pcm to the channel's own output.
func (c *Channel) Play(ctx context.Context, pcm []byte) error {
	if c.open == nil {
		return errors.New("audio channel has no output")
	}
	return c.PlayTo(ctx, c.open, pcm)
}

// PlayTo writes pcm to an output acquired from open, holding the channel
// for the duration.
func (c *Channel) PlayTo(ctx context.Context, open Opener, pcm []byte) (err error) {
	if !c.mu.TryLock() {
		return ErrChannelBusy
	}
	defer c.mu.Unlock()

	out, err := open()
	if err != nil {
		return fmt.Errorf("acquire audio output: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("release audio output: %w", closeErr)
		}
	}()

	for len(pcm) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(chunkSize, len(pcm))
		if _, err := out.Write(pcm[:n]); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
		pcm = pcm[n:]
	}
	return nil
}
