package spinner

import (
	"time"

	"github.com/schollz/progressbar/v3"
)

// Spinner is an indeterminate progress indicator shown while waiting on
// cloud resources.
type Spinner struct {
	bar  *progressbar.ProgressBar
	stop chan struct{}
}

func New(description string) *Spinner {
	return &Spinner{
		bar:  progressbar.Default(-1, description),
		stop: make(chan struct{}),
	}
}

func (s *Spinner) Start() {
	go func() {
		for {
			select {
			case <-s.stop:
				return
			case <-time.After(40 * time.Millisecond):
				_ = s.bar.Add(1)
			}
		}
	}()
}

func (s *Spinner) SetDescription(description string) {
	s.bar.Describe(description)
}

func (s *Spinner) Stop() {
	close(s.stop)
	_ = s.bar.Clear()
}
