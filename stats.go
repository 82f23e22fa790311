package render

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Statistics is a point-in-time summary of the renderer's bookkeeping. It is
// computed from CPU-side state only and never touches the device.
type Statistics struct {
	// ImageCount is the number of live image registry entries, including
	// entries whose handles are gone but whose destruction is still deferred.
	ImageCount int
	// StagingBufferCount is the number of live staging-buffer registry
	// entries.
	StagingBufferCount int
	// PendingSubmissionCount is the number of submissions whose completion
	// has not yet been observed by a reclaim pass.
	PendingSubmissionCount int
	// SubmittedValue is the completion-counter value assigned to the most
	// recent successful submission.
	SubmittedValue uint64
	// CompletedValue is the most recent counter value observed by a reclaim
	// pass. It trails the device's actual progress between passes.
	CompletedValue uint64
}

// Statistics reports the renderer's current bookkeeping summary.
func (r *Renderer) Statistics() Statistics {
	return Statistics{
		ImageCount:             r.images.Count(),
		StagingBufferCount:     r.stagingBuffers.Count(),
		PendingSubmissionCount: len(r.pending),
		SubmittedValue:         r.submitCount,
		CompletedValue:         r.lastCompleted,
	}
}

// BuildStatsString builds a JSON string summarizing the renderer's current
// bookkeeping, suitable for logging or a debug overlay.
func (r *Renderer) BuildStatsString() string {
	writer := jwriter.NewWriter()
	r.printStats(&writer)

	return string(writer.Bytes())
}

func (r *Renderer) printStats(writer *jwriter.Writer) {
	stats := r.Statistics()

	obj := writer.Object()
	defer obj.End()

	obj.Name("Images").Int(stats.ImageCount)
	obj.Name("StagingBuffers").Int(stats.StagingBufferCount)

	submissionObj := obj.Name("Submissions").Object()
	submissionObj.Name("Pending").Int(stats.PendingSubmissionCount)
	submissionObj.Name("SubmittedValue").Int(int(stats.SubmittedValue))
	submissionObj.Name("CompletedValue").Int(int(stats.CompletedValue))
	submissionObj.End()
}
