package input

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/faiface/beep/wav"
	commonerrors "github.com/gruntwork-io/go-commons/errors"
	"github.com/robmorgan/loopstation/config"
	"github.com/robmorgan/loopstation/logger"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// ErrFormatMismatch is returned when a file's sample rate differs from the
// configured one. Files are not resampled.
var ErrFormatMismatch = errors.New("wav sample rate does not match config")

// StreamWAV plays the file at path into handler in real time, one chunk of
// cfg.BufferSize frames per chunk period. It returns when the file is drained
// or ctx is cancelled.
func StreamWAV(ctx context.Context, path string, cfg config.LooperConfig, clk clock.Clock, handler Handler) error {
	log := logger.GetProjectLogger()

	f, err := os.Open(path)
	if err != nil {
		return commonerrors.WithStackTrace(err)
	}

	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return commonerrors.WithStackTrace(err)
	}
	defer streamer.Close()

	if int(format.SampleRate) != cfg.SampleRate {
		return commonerrors.WithStackTrace(fmt.Errorf("%w: %s is %d Hz, expected %d Hz", ErrFormatMismatch, path, int(format.SampleRate), cfg.SampleRate))
	}

	log.WithFields(logrus.Fields{
		"path":        path,
		"sample_rate": int(format.SampleRate),
		"channels":    format.NumChannels,
		"duration":    format.SampleRate.D(streamer.Len()),
	}).Info("streaming wav input")

	period := time.Duration(cfg.BufferSize) * time.Second / time.Duration(cfg.SampleRate)
	t := clk.NewTimer(period)
	defer t.Stop()

	for {
		chunk, ok := ReadChunk(streamer, cfg.BufferSize, cfg.Channels, cfg.SampleRate)
		if chunk.Len() > 0 {
			handler(chunk)
		}
		if !ok {
			if err := streamer.Err(); err != nil {
				return commonerrors.WithStackTrace(err)
			}
			log.WithField("path", path).Info("wav input finished")
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			t.Reset(period)
		}
	}
}
