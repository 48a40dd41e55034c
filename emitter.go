package dirt

import (
	"bufio"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"sort"
	"sync"

	"github.com/bcongdon/dirt/internal/pkg/dirtfs"
	"github.com/pkg/errors"
)

// Emitter enables mappers and reducers to yield key-value pairs.
type Emitter interface {
	Emit(key, value string) error
}

// taskEmitter is an Emitter owned by a task. The first write error is kept
// and reported by close, so that a task fails even if its Mapper or Reducer
// ignored the error returned by Emit.
type taskEmitter interface {
	Emitter
	close() error
	bytesWritten() int64
}

// reducerEmitter is a threadsafe emitter that writes "key\tvalue" lines.
type reducerEmitter struct {
	writer       io.WriteCloser
	mut          *sync.Mutex
	writtenBytes int64
	err          error
}

// newReducerEmitter initializes and returns a new reducerEmitter
func newReducerEmitter(writer io.WriteCloser) *reducerEmitter {
	return &reducerEmitter{
		writer: writer,
		mut:    &sync.Mutex{},
	}
}

// Emit yields a key-value pair to the framework.
func (e *reducerEmitter) Emit(key, value string) error {
	e.mut.Lock()
	defer e.mut.Unlock()

	if e.err != nil {
		return e.err
	}

	n, err := io.WriteString(e.writer, key+"\t"+value+"\n")
	e.writtenBytes += int64(n)
	e.err = err
	return err
}

// close terminates the reducerEmitter. close must not be called more than once
func (e *reducerEmitter) close() error {
	closeErr := e.writer.Close()
	if e.err != nil {
		return e.err
	}
	return closeErr
}

func (e *reducerEmitter) bytesWritten() int64 {
	return e.writtenBytes
}

// mapperEmitter is an emitter that partitions keys written to it.
// Keys are partitioned into one of numBins intermediate "shuffle" bins.
// Output is buffered and spilled as runs: one file per bin and spill, with
// records sorted by key, so that a reducer can merge its bin's runs
// without holding them in memory.
type mapperEmitter struct {
	numBins       uint                // number of intermediate shuffle bins
	buffers       map[uint][]keyValue // output per bin since the last spill
	buffered      int                 // number of records across buffers
	runs          uint                // number of spills so far
	fs            dirtfs.FileSystem   // filesystem to use when opening writers
	mapperID      uint                // numeric identifier of the mapper using this emitter
	outDir        string              // folder to save map output to
	partitionFunc PartitionFunc       // PartitionFunc to use when partitioning map output keys into intermediate bins
	writtenBytes  int64               // counter for number of bytes written from emitted key/val pairs
	err           error
}

// PartitionFunc assigns a key to one of numBins shuffle bins.
type PartitionFunc func(key string, numBins uint) uint

// shuffleBufferSize is the number of buffered records that triggers a
// spill of a mapperEmitter.
var shuffleBufferSize = 100000

// Initializes a new mapperEmitter
func newMapperEmitter(numBins uint, mapperID uint, outDir string, fs dirtfs.FileSystem) *mapperEmitter {
	return &mapperEmitter{
		numBins:       numBins,
		buffers:       make(map[uint][]keyValue, numBins),
		fs:            fs,
		mapperID:      mapperID,
		outDir:        outDir,
		partitionFunc: hashPartition,
	}
}

// hashPartition partitions a key to one of numBins shuffle bins
func hashPartition(key string, numBins uint) uint {
	h := fnv.New64()
	h.Write([]byte(key))
	return uint(h.Sum64() % uint64(numBins))
}

// shuffleFileName is the name of the run mapperID spills for bin.
func shuffleFileName(bin, mapperID, run uint) string {
	return fmt.Sprintf("map-bin%d-%d-%d.out", bin, mapperID, run)
}

// Emit yields a key-value pair to the framework.
func (me *mapperEmitter) Emit(key, value string) error {
	if me.err != nil {
		return me.err
	}

	bin := me.partitionFunc(key, me.numBins)
	me.buffers[bin] = append(me.buffers[bin], keyValue{Key: key, Value: value})
	me.buffered++
	if me.buffered >= shuffleBufferSize {
		me.err = me.spill()
	}
	return me.err
}

// spill writes each buffered bin as a run sorted by key. Values of one key
// keep the order they were emitted in.
func (me *mapperEmitter) spill() error {
	if me.buffered == 0 {
		return nil
	}

	bins := make([]uint, 0, len(me.buffers))
	for bin := range me.buffers {
		bins = append(bins, bin)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i] < bins[j] })

	for _, bin := range bins {
		if err := me.writeRun(bin, me.buffers[bin]); err != nil {
			return err
		}
	}

	me.buffers = make(map[uint][]keyValue, me.numBins)
	me.buffered = 0
	me.runs++
	return nil
}

func (me *mapperEmitter) writeRun(bin uint, kvs []keyValue) error {
	sort.SliceStable(kvs, func(i, j int) bool { return kvs[i].Key < kvs[j].Key })

	path := me.fs.Join(me.outDir, shuffleFileName(bin, me.mapperID, me.runs))
	writer, err := me.fs.OpenWriter(path)
	if err != nil {
		return errors.Wrapf(err, "open shuffle file %s", path)
	}

	buffered := bufio.NewWriter(writer)
	for _, kv := range kvs {
		data, err := json.Marshal(kv)
		if err != nil {
			writer.Close()
			return err
		}

		data = append(data, '\n')
		n, err := buffered.Write(data)
		me.writtenBytes += int64(n)
		if err != nil {
			writer.Close()
			return errors.Wrapf(err, "write %s", path)
		}
	}

	if err := buffered.Flush(); err != nil {
		writer.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(writer.Close(), "close %s", path)
}

// close spills what is left in the buffers. Must not be called more than once
func (me *mapperEmitter) close() error {
	if me.err != nil {
		return me.err
	}
	me.err = me.spill()
	return me.err
}

func (me *mapperEmitter) bytesWritten() int64 {
	return me.writtenBytes
}

// combineBufferSize is the number of buffered values that triggers a flush
// of a combiningEmitter.
var combineBufferSize = 100000

// combiningEmitter buffers map output per key and runs a combiner over
// each key's values before passing the result on. Flushing happens when
// the buffer is full and when the emitter is closed, so a key may be
// combined more than once per task.
type combiningEmitter struct {
	next     taskEmitter
	combiner Reducer
	buffer   map[string][]string
	buffered int
}

func newCombiningEmitter(next taskEmitter, combiner Reducer) *combiningEmitter {
	return &combiningEmitter{
		next:     next,
		combiner: combiner,
		buffer:   make(map[string][]string),
	}
}

// Emit yields a key-value pair to the framework.
func (ce *combiningEmitter) Emit(key, value string) error {
	ce.buffer[key] = append(ce.buffer[key], value)
	ce.buffered++
	if ce.buffered >= combineBufferSize {
		return ce.flush()
	}
	return nil
}

func (ce *combiningEmitter) flush() error {
	keys := make([]string, 0, len(ce.buffer))
	for key := range ce.buffer {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		ce.combiner.Reduce(key, ValuesOf(ce.buffer[key]), ce.next)
	}

	ce.buffer = make(map[string][]string)
	ce.buffered = 0
	return nil
}

func (ce *combiningEmitter) close() error {
	ce.flush()
	return ce.next.close()
}

func (ce *combiningEmitter) bytesWritten() int64 {
	return ce.next.bytesWritten()
}
