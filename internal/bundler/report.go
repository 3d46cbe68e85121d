package bundler

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// RootReport summarizes the run of one root path.
type RootReport struct {
	// Err is set when the root could not be processed at all.
	Err            error
	Root           string
	Artifacts      []Artifact
	ImagesFound    int
	Converted      int
	ConvertFailed  int
	ImagesExcluded int
	PDFsCreated    int
	PDFsSkipped    int
	PDFsFailed     int
	BytesWritten   int64
}

// Failures counts every failure of the root, a fatal root error included.
func (r RootReport) Failures() int {
	failures := r.ConvertFailed + r.ImagesExcluded + r.PDFsFailed
	if r.Err != nil {
		failures++
	}

	return failures
}

// Summary is the result of a Run, one report per root in argument order.
type Summary struct {
	Roots []RootReport
}

// Totals adds up the counters of all roots.
func (s Summary) Totals() RootReport {
	var total RootReport

	total.Root = "total"

	for _, root := range s.Roots {
		total.ImagesFound += root.ImagesFound
		total.Converted += root.Converted
		total.ConvertFailed += root.ConvertFailed
		total.ImagesExcluded += root.ImagesExcluded
		total.PDFsCreated += root.PDFsCreated
		total.PDFsSkipped += root.PDFsSkipped
		total.PDFsFailed += root.PDFsFailed
		total.BytesWritten += root.BytesWritten
		total.Artifacts = append(total.Artifacts, root.Artifacts...)
	}

	return total
}

// HasFailures reports whether any root recorded a failure.
func (s Summary) HasFailures() bool {
	return slices.ContainsFunc(s.Roots, func(r RootReport) bool { return r.Failures() > 0 })
}

// rootCounters is the mutable, concurrency-safe state behind a RootReport.
type rootCounters struct {
	artifacts      []Artifact
	imagesFound    atomic.Int64
	processed      atomic.Int64
	converted      atomic.Int64
	convertFailed  atomic.Int64
	imagesExcluded atomic.Int64
	pdfsCreated    atomic.Int64
	pdfsSkipped    atomic.Int64
	pdfsFailed     atomic.Int64
	bytesWritten   atomic.Int64
	mu             sync.Mutex
}

func (c *rootCounters) addArtifact(artifact Artifact) {
	c.pdfsCreated.Add(1)
	c.bytesWritten.Add(artifact.Bytes)

	c.mu.Lock()
	c.artifacts = append(c.artifacts, artifact)
	c.mu.Unlock()
}

func (c *rootCounters) report(root string, err error) RootReport {
	c.mu.Lock()
	artifacts := slices.Clone(c.artifacts)
	c.mu.Unlock()

	slices.SortFunc(artifacts, func(a, b Artifact) int { return strings.Compare(a.Path, b.Path) })

	return RootReport{
		Err:            err,
		Root:           root,
		Artifacts:      artifacts,
		ImagesFound:    int(c.imagesFound.Load()),
		Converted:      int(c.converted.Load()),
		ConvertFailed:  int(c.convertFailed.Load()),
		ImagesExcluded: int(c.imagesExcluded.Load()),
		PDFsCreated:    int(c.pdfsCreated.Load()),
		PDFsSkipped:    int(c.pdfsSkipped.Load()),
		PDFsFailed:     int(c.pdfsFailed.Load()),
		BytesWritten:   c.bytesWritten.Load(),
	}
}
