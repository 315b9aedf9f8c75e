package battlectl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/ashureev/quarrel-labs/internal/config"
	"github.com/ashureev/quarrel-labs/internal/domain"
	"github.com/ashureev/quarrel-labs/internal/generation"
	"github.com/ashureev/quarrel-labs/internal/voice"
	"github.com/spf13/cobra"
)

type newSpeaker func(ctx context.Context) (voice.Speaker, func(), error)

func speakerFromEnv(ctx context.Context) (voice.Speaker, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	transport, closeTransport, err := generation.Open(ctx, cfg.GenerationOpenConfig(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("open generation transport: %w", err)
	}
	return generation.NewClient(transport, generation.WithRetryPolicy(cfg.RetryPolicy())), closeTransport, nil
}

// wavFile frames PCM as WAV into a file and closes the file with it.
type wavFile struct {
	*voice.WAVSink
	f *os.File
}

func (w wavFile) Close() error {
	return errors.Join(w.WAVSink.Close(), w.f.Close())
}

func wavFileOpener(path string) voice.Opener {
	return func() (io.WriteCloser, error) {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		return wavFile{WAVSink: voice.NewWAVSink(f, generation.SpeechSampleRate), f: f}, nil
	}
}

func (a *app) speakCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "speak <battle-id> <message-id>",
		Short: "Synthesize an advisor message to a WAV file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.battle(cmd, args[0])
			if err != nil {
				return err
			}
			idx := slices.IndexFunc(b.Messages, func(m domain.Message) bool { return m.ID == args[1] })
			if idx < 0 {
				return fmt.Errorf("message %s not found in battle %s", args[1], args[0])
			}
			msg := b.Messages[idx]
			if msg.IsUser() {
				return voice.ErrNotNarratable
			}

			speaker, release, err := a.newSpeaker(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			path := out
			if path == "" {
				path = msg.ID + ".wav"
			}
			narrator := voice.NewNarrator(speaker, a.registry, nil)
			if err := narrator.Narrate(cmd.Context(), msg, voice.NewChannel(wavFileOpener(path))); err != nil {
				return fmt.Errorf("narrate message: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output WAV path (default <message-id>.wav)")
	return cmd
}
