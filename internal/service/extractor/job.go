package extractor

// percentScale converts a ratio into a percentage.
const percentScale = 100.0

// Job tracks the progress of one extraction run.
type Job struct {
	total     int
	processed int
}

// NewJob creates a tracker for total entries.
func NewJob(total int) *Job {
	if total < 0 {
		total = 0
	}

	return &Job{total: total}
}

// Advance marks one more entry as processed, never exceeding the total.
func (j *Job) Advance() {
	if j.processed < j.total {
		j.processed++
	}
}

// Total returns the number of entries in the archive.
func (j *Job) Total() int {
	return j.total
}

// Processed returns the number of entries extracted so far.
func (j *Job) Processed() int {
	return j.processed
}

// Percent returns the progress clamped to [0, 100]. An empty job is complete.
func (j *Job) Percent() float64 {
	return Percent(j.processed, j.total)
}

// Percent returns processed/total as a percentage clamped to [0, 100].
func Percent(processed, total int) float64 {
	if total <= 0 {
		return percentScale
	}

	progress := float64(processed) / float64(total) * percentScale

	switch {
	case progress > percentScale:
		return percentScale
	case progress < 0:
		return 0
	default:
		return progress
	}
}
