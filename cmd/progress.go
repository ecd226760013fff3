package main

import (
	"time"

	"github.com/desertthunder/moodmusic/internal/tasks"
	"github.com/schollz/progressbar/v3"
)

// showProgress renders updates as a progress bar until the channel is closed.
//
// The returned channel is closed once the bar has finished drawing.
func (r *Runner) showProgress(description string, updates <-chan tasks.ProgressUpdate) <-chan struct{} {
	done := make(chan struct{})

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(r.progress),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)

	go func() {
		defer close(done)
		for u := range updates {
			r.logger.Debug("progress", "phase", u.Phase, "step", u.Step, "total", u.Total, "message", u.Message)
			if u.Total > 0 {
				bar.ChangeMax(u.Total)
				bar.Set(u.Step)
			}
			bar.Describe(u.Message)
		}
		bar.Finish()
	}()

	return done
}
