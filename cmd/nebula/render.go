package main

import (
	"fmt"
	"time"

	"p2p-nebula/nebula/pkg/transfer"
)

// ANSI color codes for terminal output
const (
	reset  = "\033[0m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	cyan   = "\033[36m"
)

// progressRenderer redraws one status line for a download whose size is
// unknown until the holder closes the stream.
type progressRenderer struct {
	label       string
	progress    *transfer.Progress
	stopChan    chan struct{}
	doneChan    chan struct{}
	refreshRate time.Duration
	useColors   bool
	started     time.Time
}

func newProgressRenderer(label string, p *transfer.Progress, useColors bool) *progressRenderer {
	return &progressRenderer{
		label:       label,
		progress:    p,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
		refreshRate: 200 * time.Millisecond,
		useColors:   useColors,
		started:     time.Now(),
	}
}

// Start runs the render loop until StopAndWait.
func (pr *progressRenderer) Start() {
	defer close(pr.doneChan)

	ticker := time.NewTicker(pr.refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Nothing to draw until a holder has been found.
			if pr.progress.Peer() != "" {
				pr.render()
			}
		case <-pr.stopChan:
			return
		}
	}
}

// StopAndWait ends the loop and prints the final line for err.
func (pr *progressRenderer) StopAndWait(err error) {
	close(pr.stopChan)
	<-pr.doneChan

	if pr.progress.Peer() == "" {
		return
	}
	fmt.Print("\r\033[K")
	if err != nil {
		pr.printf("%s[%s]%s %s✗ failed%s after %s\n", cyan, pr.label, reset, red, reset, formatBytes(float64(pr.progress.Bytes())))
		return
	}
	pr.printf("%s[%s]%s %s%s%s | Completed in %s\n", cyan, pr.label, reset,
		green, formatBytes(float64(pr.progress.Bytes())), reset, formatDuration(time.Since(pr.started)))
}

func (pr *progressRenderer) render() {
	pr.printf("\r%s[%s]%s %s%s%s from %s | %s%s/s%s",
		cyan, pr.label, reset,
		yellow, formatBytes(float64(pr.progress.Bytes())), reset,
		pr.progress.Peer(),
		blue, formatBytes(pr.progress.Speed()), reset,
	)
}

// printf drops the color codes when colors are off.
func (pr *progressRenderer) printf(format string, args ...any) {
	if !pr.useColors {
		for i, a := range args {
			if s, ok := a.(string); ok && isColor(s) {
				args[i] = ""
			}
		}
	}
	fmt.Printf(format, args...)
}

func isColor(s string) bool {
	switch s {
	case reset, red, green, yellow, blue, cyan:
		return true
	}
	return false
}

// formatBytes formats a byte count into a human-readable string
func formatBytes(bytes float64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%.1f B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", bytes/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration into a human-readable string
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", d/time.Second)
	}
	if d < time.Hour {
		mins := d / time.Minute
		secs := (d % time.Minute) / time.Second
		return fmt.Sprintf("%dm%ds", mins, secs)
	}
	hours := d / time.Hour
	mins := (d % time.Hour) / time.Minute
	return fmt.Sprintf("%dh%dm", hours, mins)
}
