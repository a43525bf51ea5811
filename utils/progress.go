package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"

	"onedl/internal"
)

// ProgressTracker displays the progress of one file download
type ProgressTracker struct {
	bar       *pb.ProgressBar
	quiet     bool
	out       io.Writer
	startTime time.Time
	total     int64
	current   int64
	filename  string
	mutex     sync.RWMutex

	lastUpdate   time.Time
	lastBytes    int64
	speedSamples []float64
	maxSamples   int
}

// DownloadSummary contains final download statistics
type DownloadSummary struct {
	TotalBytes   int64
	TotalTime    time.Duration
	AverageSpeed float64 // bytes per second
	PeakSpeed    float64 // bytes per second
	Filename     string
}

// NewProgressTracker creates a tracker writing to stderr. total may be
// zero when the server does not announce a length.
func NewProgressTracker(total int64, quiet bool) *ProgressTracker {
	return NewProgressTrackerTo(os.Stderr, total, quiet)
}

// NewProgressTrackerTo creates a tracker writing to out
func NewProgressTrackerTo(out io.Writer, total int64, quiet bool) *ProgressTracker {
	tracker := &ProgressTracker{
		quiet:        quiet,
		out:          out,
		startTime:    time.Now(),
		total:        total,
		lastUpdate:   time.Now(),
		speedSamples: make([]float64, 0),
		maxSamples:   10,
	}

	if !quiet {
		tmpl := `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}`
		bar := pb.ProgressBarTemplate(tmpl).New(0).SetTotal(total)
		bar.SetWriter(out)
		bar.Set(pb.Bytes, true)
		bar.Set(pb.SIBytesPrefix, true)
		bar.Set("prefix", "Downloading: ")
		bar.Start()
		tracker.bar = bar
	}

	return tracker
}

// Update records the number of bytes written so far
func (p *ProgressTracker) Update(current int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	now := time.Now()
	p.current = current

	timeDiff := now.Sub(p.lastUpdate).Seconds()
	if timeDiff > 0.1 {
		bytesDiff := current - p.lastBytes
		p.speedSamples = append(p.speedSamples, float64(bytesDiff)/timeDiff)
		if len(p.speedSamples) > p.maxSamples {
			p.speedSamples = p.speedSamples[1:]
		}
		p.lastUpdate = now
		p.lastBytes = current
	}

	if p.bar != nil {
		p.bar.SetCurrent(current)
	}
}

// Finish completes the progress bar and returns download summary
func (p *ProgressTracker) Finish() *DownloadSummary {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	totalTime := time.Since(p.startTime)

	if p.bar != nil {
		p.bar.Finish()
	}

	var averageSpeed float64
	if totalTime > 0 {
		averageSpeed = float64(p.current) / totalTime.Seconds()
	}

	var peakSpeed float64
	for _, speed := range p.speedSamples {
		if speed > peakSpeed {
			peakSpeed = speed
		}
	}

	summary := &DownloadSummary{
		TotalBytes:   p.current,
		TotalTime:    totalTime,
		AverageSpeed: averageSpeed,
		PeakSpeed:    peakSpeed,
		Filename:     p.filename,
	}

	if !p.quiet {
		p.displaySummary(summary)
	}

	return summary
}

func (p *ProgressTracker) displaySummary(summary *DownloadSummary) {
	fmt.Fprintf(p.out, "Total size: %s in %v (%s/s)\n",
		humanize.IBytes(uint64(summary.TotalBytes)),
		summary.TotalTime.Round(time.Millisecond),
		humanize.IBytes(uint64(summary.AverageSpeed)))
	if summary.Filename != "" {
		fmt.Fprintf(p.out, "Saved to: %s\n", summary.Filename)
	}
}

// SetFilename sets the filename reported in the summary
func (p *ProgressTracker) SetFilename(filename string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.filename = filename
}

// GetCurrentStats returns current download statistics
func (p *ProgressTracker) GetCurrentStats() (speed float64, eta time.Duration, percentage float64) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	var currentSpeed float64
	if len(p.speedSamples) > 0 {
		sampleCount := len(p.speedSamples)
		if sampleCount > 3 {
			sampleCount = 3
		}
		for i := len(p.speedSamples) - sampleCount; i < len(p.speedSamples); i++ {
			currentSpeed += p.speedSamples[i]
		}
		currentSpeed /= float64(sampleCount)
	}

	var etaTime time.Duration
	if currentSpeed > 0 && p.total > p.current {
		etaTime = time.Duration(float64(p.total-p.current)/currentSpeed) * time.Second
	}

	var percent float64
	if p.total > 0 {
		percent = float64(p.current) / float64(p.total) * 100
	}

	return currentSpeed, etaTime, percent
}

// IsQuiet returns whether the tracker is in quiet mode
func (p *ProgressTracker) IsQuiet() bool {
	return p.quiet
}

// progressWriter feeds written byte counts into a tracker
type progressWriter struct {
	tracker *ProgressTracker
	written int64
}

// NewProgressWriter returns a writer for io.TeeReader/io.MultiWriter that
// advances tracker by every write
func NewProgressWriter(tracker *ProgressTracker, offset int64) io.Writer {
	return &progressWriter{tracker: tracker, written: offset}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	w.tracker.Update(w.written)
	return len(p), nil
}

// JobProgressBar renders remote job progress (percent, rate, peers). It
// implements internal.ProgressRenderer.
type JobProgressBar struct {
	mutex sync.Mutex
	out   io.Writer
	quiet bool
	label string
	bar   *pb.ProgressBar
}

var _ internal.ProgressRenderer = (*JobProgressBar)(nil)

// NewJobProgressBar creates a renderer; the bar is started lazily on the
// first snapshot.
func NewJobProgressBar(out io.Writer, label string, quiet bool) *JobProgressBar {
	return &JobProgressBar{out: out, label: label, quiet: quiet}
}

// Render draws one snapshot
func (j *JobProgressBar) Render(p internal.Progress) {
	if j.quiet {
		return
	}

	j.mutex.Lock()
	defer j.mutex.Unlock()

	if j.bar == nil {
		tmpl := `{{string . "label"}} {{string . "phase"}} {{bar . }} {{percent . }} {{string . "rate"}} {{string . "peers"}}`
		j.bar = pb.ProgressBarTemplate(tmpl).New(1000)
		j.bar.SetWriter(j.out)
		j.bar.Set("label", j.label)
		j.bar.Start()
	}

	j.bar.Set("phase", p.Phase)
	j.bar.Set("rate", FormatRate(p.RateBytesPerSec))
	if p.Peers > 0 {
		j.bar.Set("peers", fmt.Sprintf("%d peers", p.Peers))
	} else {
		j.bar.Set("peers", "")
	}
	j.bar.SetCurrent(int64(clampPercent(p.Percent) * 10))
}

// Done finishes the bar, if one was started
func (j *JobProgressBar) Done() {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if j.bar != nil {
		j.bar.Finish()
		j.bar = nil
	}
}

// FormatRate renders a byte rate such as "1.2 MiB/s"; zero renders empty
func FormatRate(bytesPerSec int64) string {
	if bytesPerSec <= 0 {
		return ""
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
