package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/voltlog/voltlog/internal/logging"
	"github.com/voltlog/voltlog/pkg/types"
)

// ReplayConfig holds configuration for the capture-file line source
type ReplayConfig struct {
	// Path is the capture file to follow
	Path string `yaml:"path"`

	// Follow keeps watching the file for appended lines after the
	// initial read; off, the input stops at EOF.
	Follow bool `yaml:"follow"`

	// BufferSize for the line channel
	BufferSize int `yaml:"buffer_size,omitempty"`
}

// ReplayInput replays previously captured telemetry lines from a file,
// optionally following appends. Unlike a serial device the file is read
// from the beginning; replay is for bench runs and tests.
type ReplayInput struct {
	*BaseInput
	config  ReplayConfig
	logger  *logging.Logger
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewReplayInput creates a new replay input
func NewReplayInput(name string, config ReplayConfig, logger *logging.Logger) *ReplayInput {
	if config.BufferSize == 0 {
		config.BufferSize = 1024
	}

	return &ReplayInput{
		BaseInput: NewBaseInput(name, "replay", config.BufferSize),
		config:    config,
		logger:    logger.WithComponent("input-replay"),
	}
}

// Start opens the capture file and begins reading from the start
func (r *ReplayInput) Start() error {
	file, err := os.Open(r.config.Path)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}

	if r.config.Follow {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			file.Close()
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		if err := watcher.Add(r.config.Path); err != nil {
			watcher.Close()
			file.Close()
			return fmt.Errorf("failed to watch capture file: %w", err)
		}
		r.watcher = watcher
	}

	r.logger.Info().
		Str("path", r.config.Path).
		Bool("follow", r.config.Follow).
		Msg("Replaying capture file")

	r.wg.Add(1)
	go r.readLoop(file)

	return nil
}

// Stop stops the replay
func (r *ReplayInput) Stop() error {
	r.Cancel()
	if r.watcher != nil {
		r.watcher.Close()
	}
	r.wg.Wait()
	r.Close()
	return nil
}

// readLoop reads lines, waiting on file events at EOF when following
func (r *ReplayInput) readLoop(file *os.File) {
	defer r.wg.Done()
	defer file.Close()

	reader := bufio.NewReader(file)

	for {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		text, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				r.CountReadError()
				r.logger.Error().Err(err).Str("path", r.config.Path).Msg("Error reading capture file")
				return
			}
			// A partial last line without terminator stays pending
			// until more data arrives, matching serial framing.
			if !r.config.Follow {
				if text != "" {
					r.emit(text)
				}
				return
			}
			if !r.waitForWrite() {
				return
			}
			// Re-read from the current offset; the pending partial
			// line is handled by the next ReadString call.
			if text != "" {
				if _, err := file.Seek(int64(-len(text)), io.SeekCurrent); err == nil {
					reader.Reset(file)
				}
			}
			continue
		}

		r.emit(text)
	}
}

// waitForWrite blocks until the capture file changes; false means stop
func (r *ReplayInput) waitForWrite() bool {
	// Fallback poll guards against missed events.
	timer := time.NewTimer(500 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-r.Context().Done():
		return false
	case event, ok := <-r.watcher.Events:
		if !ok {
			return false
		}
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			r.logger.Warn().Str("path", r.config.Path).Msg("Capture file removed")
			return false
		}
		return true
	case err, ok := <-r.watcher.Errors:
		if ok && err != nil {
			r.logger.Error().Err(err).Msg("File watcher error")
		}
		return ok
	case <-timer.C:
		return true
	}
}

// emit sanitizes and forwards one line
func (r *ReplayInput) emit(raw string) {
	r.SendLine(&types.RawLine{
		Text:       sanitize(raw),
		Source:     r.config.Path,
		ReceivedAt: time.Now(),
	})
}

// Health returns the health status
func (r *ReplayInput) Health() Health {
	return Health{
		Status:  HealthStatusHealthy,
		Message: "Replaying capture file",
		Details: map[string]interface{}{
			"path":   r.config.Path,
			"follow": r.config.Follow,
		},
	}
}
