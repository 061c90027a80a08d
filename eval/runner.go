package eval

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"
)

// Job is one named unit of campaign work, the Go analogue of one
// (job, params) tuple in the original batch driver's param_list.
type Job struct {
	Name string
	Run  func() (Result, error)
}

// RunCampaign executes every job with at most `workers` running
// concurrently (golang.org/x/sync/semaphore standing in for the
// original's multiprocessing.Pool), collects every successful Result
// in job order, and writes them as CSV to w using the first result's
// header. A job that errors contributes no CSV row; its error is
// joined into the returned multierror so one bad parameter tuple
// doesn't abort an otherwise-long batch run.
func RunCampaign(ctx context.Context, jobs []Job, workers int, w io.Writer) error {
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	results := make([]*Result, len(jobs))
	errs := make([]error, len(jobs))

	var wg sync.WaitGroup
	for i, job := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = fmt.Errorf("job %s: %w", job.Name, err)
			continue
		}
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			defer sem.Release(1)
			res, err := job.Run()
			if err != nil {
				errs[i] = fmt.Errorf("job %s: %w", job.Name, err)
				return
			}
			results[i] = &res
		}(i, job)
	}
	wg.Wait()

	var merr *multierror.Error
	for _, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	if err := writeCSV(results, w); err != nil {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}

func writeCSV(results []*Result, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	var header []string
	for _, r := range results {
		if r != nil {
			header = r.Header()
			break
		}
	}
	if header == nil {
		return nil
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		if r == nil {
			continue
		}
		if err := cw.Write(r.Row()); err != nil {
			return err
		}
	}
	return cw.Error()
}
