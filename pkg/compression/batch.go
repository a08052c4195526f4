package compression

import (
	"runtime"
	"sync"
)

// blockResult is one worker output, indexed by position in the batch.
type blockResult struct {
	id   int
	data []byte
	err  error
}

// CompressBatch compresses every block with a bounded worker pool and
// returns the results in input order. The first error aborts the batch.
// workers <= 0 uses runtime.NumCPU.
func (cp *CompressorPool) CompressBatch(blocks [][]byte, workers int) ([][]byte, error) {
	return cp.runBatch(blocks, workers, func(c Compressor, b []byte) ([]byte, error) {
		return c.Compress(b)
	})
}

// DecompressBatch is the inverse of CompressBatch.
func (cp *CompressorPool) DecompressBatch(blocks [][]byte, workers int) ([][]byte, error) {
	return cp.runBatch(blocks, workers, func(c Compressor, b []byte) ([]byte, error) {
		return c.Decompress(b)
	})
}

func (cp *CompressorPool) runBatch(blocks [][]byte, workers int, fn func(Compressor, []byte) ([]byte, error)) ([][]byte, error) {
	out := make([][]byte, len(blocks))
	if len(blocks) == 0 {
		return out, nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(blocks) {
		workers = len(blocks)
	}

	if workers == 1 {
		c := cp.Get()
		defer cp.Put(c)
		for i, b := range blocks {
			data, err := fn(c, b)
			if err != nil {
				return nil, err
			}
			out[i] = data
		}
		return out, nil
	}

	jobs := make(chan int)
	results := make(chan blockResult, len(blocks))
	done := make(chan struct{})

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := cp.Get()
			defer cp.Put(c)
			for id := range jobs {
				data, err := fn(c, blocks[id])
				results <- blockResult{id: id, data: data, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range blocks {
			select {
			case jobs <- i:
			case <-done:
				return
			}
		}
	}()

	for i := 0; i < len(blocks); i++ {
		r := <-results
		if r.err != nil {
			// results holds the whole batch; workers never block on send.
			close(done)
			wg.Wait()
			return nil, r.err
		}
		out[r.id] = r.data
	}
	wg.Wait()
	return out, nil
}
