package bundler

import (
	"context"
	"sync"

	"github.com/cheggaaa/pb/v3"
)

const progressTemplate = `{{string . "prefix"}}{{ bar . " " "━" "━" " " " "}} {{counters .}} {{percent .}} {{etime .}}`

// runJobs hands every job to a pool of at most Workers goroutines and blocks
// until all of them are finished, which makes it a hard barrier for the
// caller. Each job additionally holds one processor-wide slot while it runs,
// so the Workers limit also applies across concurrently processed roots.
// After cancellation, workers stop picking up new jobs; running jobs finish.
func runJobs[J any](
	ctx context.Context,
	processor *Processor,
	label string,
	jobs []J,
	handle func(ctx context.Context, job J),
) {
	if len(jobs) == 0 {
		return
	}

	queue := make(chan J, len(jobs))
	for _, job := range jobs {
		queue <- job
	}

	close(queue)

	progressBar := pb.New(len(jobs)).
		SetTemplateString(progressTemplate).
		SetWriter(processor.config.ProgressBarOutput).
		Set("prefix", label+" ").
		Start()
	defer progressBar.Finish()

	workerCount := min(processor.config.Workers, len(jobs))

	var waitGroup sync.WaitGroup

	for range workerCount {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			for job := range queue {
				if !processor.acquireSlot(ctx) {
					processor.log.Warn("Context canceled, skipping remaining %s jobs", label)

					return
				}

				handle(ctx, job)
				processor.releaseSlot()
				progressBar.Increment()
			}
		}()
	}

	waitGroup.Wait()
}

// acquireSlot takes one of the processor-wide job slots. It returns false
// once ctx is done.
func (processor *Processor) acquireSlot(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	select {
	case processor.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (processor *Processor) releaseSlot() {
	<-processor.slots
}
