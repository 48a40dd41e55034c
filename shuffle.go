package dirt

import (
	"container/heap"
	"encoding/json"
	"io"
	"sync/atomic"

	"github.com/bcongdon/dirt/internal/pkg/dirtfs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// shuffleRun reads the records of one sorted shuffle file in order.
type shuffleRun struct {
	name    string
	index   int // position of the file in the bin's listing
	decoder *json.Decoder
	current keyValue
}

func (r *shuffleRun) next() (bool, error) {
	if !r.decoder.More() {
		return false, nil
	}
	var kv keyValue
	if err := r.decoder.Decode(&kv); err != nil {
		return false, errors.Wrapf(err, "decode %s", r.name)
	}
	r.current = kv
	return true, nil
}

// runHeap orders runs by their current key. Equal keys are taken from
// runs in listing order.
type runHeap []*shuffleRun

func (h runHeap) Len() int { return len(h) }

func (h runHeap) Less(i, j int) bool {
	if h[i].current.Key != h[j].current.Key {
		return h[i].current.Key < h[j].current.Key
	}
	return h[i].index < h[j].index
}

func (h runHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *runHeap) Push(x interface{}) { *h = append(*h, x.(*shuffleRun)) }

func (h *runHeap) Pop() interface{} {
	old := *h
	run := old[len(old)-1]
	*h = old[:len(old)-1]
	return run
}

// shuffleMerger merges the sorted runs of one reduce bin. Only the current
// record of each run is held in memory.
type shuffleMerger struct {
	runs    runHeap
	readers []io.Closer
}

// openShuffleRuns opens every run in files and positions each on its
// first record.
func (j *Job) openShuffleRuns(files []dirtfs.FileInfo) (*shuffleMerger, error) {
	m := &shuffleMerger{}
	for i, file := range files {
		log.Debugf("Reducing on intermediate file: %s", file.Name)
		reader, err := j.fileSystem.OpenReader(file.Name, 0)
		if err != nil {
			m.close()
			return nil, errors.Wrapf(err, "open %s", file.Name)
		}
		m.readers = append(m.readers, reader)
		atomic.AddInt64(&j.bytesRead, file.Size)

		run := &shuffleRun{name: file.Name, index: i, decoder: json.NewDecoder(reader)}
		ok, err := run.next()
		if err != nil {
			m.close()
			return nil, err
		}
		if ok {
			m.runs = append(m.runs, run)
		}
	}
	heap.Init(&m.runs)
	return m, nil
}

func (m *shuffleMerger) close() {
	for _, reader := range m.readers {
		reader.Close()
	}
}

// nextKey returns the smallest key left in the bin. ok is false once every
// run is drained.
func (m *shuffleMerger) nextKey() (key string, ok bool) {
	if len(m.runs) == 0 {
		return "", false
	}
	return m.runs[0].current.Key, true
}

// sendValues passes every value of key to out and advances past them.
// Once stop is closed the remaining values of key are skipped.
func (m *shuffleMerger) sendValues(key string, out chan<- string, stop <-chan struct{}) error {
	for len(m.runs) > 0 && m.runs[0].current.Key == key {
		run := m.runs[0]
		select {
		case out <- run.current.Value:
		case <-stop:
		}

		ok, err := run.next()
		if err != nil {
			return err
		}
		if ok {
			heap.Fix(&m.runs, 0)
		} else {
			heap.Pop(&m.runs)
		}
	}
	return nil
}

// reduceMerged runs reducer over the keys of m in sorted order, one key
// at a time. Values are streamed to the reducer as they are read.
func reduceMerged(m *shuffleMerger, reducer Reducer, emitter Emitter) error {
	for {
		key, ok := m.nextKey()
		if !ok {
			return nil
		}

		values := make(chan string)
		done := make(chan struct{})
		go func() {
			defer close(done)
			reducer.Reduce(key, newValueIterator(values), emitter)
		}()

		err := m.sendValues(key, values, done)
		close(values)
		<-done
		if err != nil {
			return err
		}
	}
}
