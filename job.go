package dirt

import (
	"fmt"
	"sync/atomic"

	"github.com/bcongdon/dirt/internal/pkg/dirtfs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Job is one stage of a pipeline. Its map phase reads the lines of its
// inputs; its optional reduce phase groups map output by key. A Job
// without a Reducer is map-only and writes map output directly.
type Job struct {
	Name    string
	Map     Mapper
	Reduce  Reducer
	Combine Reducer

	// Inputs are path globs read by the map phase. InputStages names stages
	// whose output is read instead. A job with neither reads the driver's
	// inputs.
	Inputs      []string
	InputStages []string

	// Broadcasts are loaded once per worker and handed to TableMappers and
	// TableReducers.
	Broadcasts []Broadcast

	fileSystem       dirtfs.FileSystem
	workingLocation  string
	outputPath       string
	intermediateBins uint
	runID            string
	combine          bool
	cleanup          bool

	bytesRead    int64
	bytesWritten int64
}

// NewJob returns a Job named name. reducer may be nil for a map-only job.
func NewJob(name string, mapper Mapper, reducer Reducer) *Job {
	return &Job{
		Name:   name,
		Map:    mapper,
		Reduce: reducer,
	}
}

// MapOnly reports whether the job has no reduce phase.
func (j *Job) MapOnly() bool {
	return j.Reduce == nil
}

// dependencies returns the stages that must complete before j starts:
// its input stages and the stages its broadcasts read.
func (j *Job) dependencies() []string {
	seen := make(map[string]bool)
	deps := make([]string, 0, len(j.InputStages)+len(j.Broadcasts))
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			deps = append(deps, name)
		}
	}

	for _, stage := range j.InputStages {
		add(stage)
	}
	for _, b := range j.Broadcasts {
		if b.Location == "" {
			add(b.Stage)
		}
	}
	return deps
}

// prepare points j at its filesystem and working location for one run.
func (j *Job) prepare(fs dirtfs.FileSystem, workingLocation, runID string) {
	j.fileSystem = fs
	j.workingLocation = workingLocation
	j.outputPath = fs.Join(workingLocation, j.Name)
	j.runID = runID
	atomic.StoreInt64(&j.bytesRead, 0)
	atomic.StoreInt64(&j.bytesWritten, 0)
}

func stageOutputGlob(fs dirtfs.FileSystem, workingLocation, stage string) string {
	return fs.Join(workingLocation, stage, "output-*")
}

// inputGlobs returns the globs read by j's map phase.
func (j *Job) inputGlobs(driverInputs []string) []string {
	globs := append([]string{}, j.Inputs...)
	for _, stage := range j.InputStages {
		globs = append(globs, stageOutputGlob(j.fileSystem, j.workingLocation, stage))
	}
	if len(globs) == 0 {
		globs = append(globs, driverInputs...)
	}
	return globs
}

// inputSplits lists the files matched by globs and cuts them into splits
// of at most maxSplitSize bytes. Empty files produce no splits.
func (j *Job) inputSplits(globs []string, maxSplitSize int64) ([]inputSplit, error) {
	splits := make([]inputSplit, 0)
	for _, glob := range globs {
		files, err := j.fileSystem.ListFiles(glob)
		if err != nil {
			return nil, errors.Wrapf(err, "list input %s", glob)
		}
		if len(files) == 0 {
			log.Warnf("Stage %s: no files match input %s", j.Name, glob)
		}

		for _, file := range files {
			splits = append(splits, splitInputFile(file, maxSplitSize)...)
		}
	}
	return splits, nil
}

func (j *Job) taskMapper() (Mapper, error) {
	tm, ok := j.Map.(TableMapper)
	if !ok {
		return j.Map, nil
	}

	tables, err := j.loadTables()
	if err != nil {
		return nil, err
	}
	return tm.WithTables(tables)
}

func (j *Job) taskReducer() (Reducer, error) {
	tr, ok := j.Reduce.(TableReducer)
	if !ok {
		return j.Reduce, nil
	}

	tables, err := j.loadTables()
	if err != nil {
		return nil, err
	}
	return tr.WithTables(tables)
}

func (j *Job) mapEmitter(mapperID uint) (taskEmitter, error) {
	if j.MapOnly() {
		path := j.fileSystem.Join(j.outputPath, fmt.Sprintf("output-map-%d", mapperID))
		writer, err := j.fileSystem.OpenWriter(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", path)
		}
		return newReducerEmitter(writer), nil
	}

	var emitter taskEmitter = newMapperEmitter(j.intermediateBins, mapperID, j.outputPath, j.fileSystem)
	if j.combine && j.Combine != nil {
		emitter = newCombiningEmitter(emitter, j.Combine)
	}
	return emitter, nil
}

func (j *Job) runMapper(mapperID uint, splits []inputSplit) error {
	mapper, err := j.taskMapper()
	if err != nil {
		return err
	}

	emitter, err := j.mapEmitter(mapperID)
	if err != nil {
		return err
	}

	for _, split := range splits {
		if err := j.processMapperSplit(split, mapper, emitter); err != nil {
			emitter.close()
			return err
		}
	}

	err = emitter.close()
	atomic.AddInt64(&j.bytesWritten, emitter.bytesWritten())
	return err
}

// processMapperSplit maps every line owned by split.
func (j *Job) processMapperSplit(split inputSplit, mapper Mapper, emitter Emitter) error {
	inputSource, err := j.fileSystem.OpenReader(split.Filename, split.StartOffset)
	if err != nil {
		return errors.Wrapf(err, "open %s", split.Filename)
	}
	defer inputSource.Close()

	bytesRead, err := split.readLines(inputSource, func(line string) {
		mapper.Map("", line, emitter)
	})
	atomic.AddInt64(&j.bytesRead, bytesRead)
	return errors.Wrapf(err, "read %s", split.Filename)
}

func (j *Job) runReducer(binID uint) error {
	reducer, err := j.taskReducer()
	if err != nil {
		return err
	}

	// Determine the intermediate data files this reducer is responsible for
	pattern := j.fileSystem.Join(j.outputPath, fmt.Sprintf("map-bin%d-*.out", binID))
	intermediateFiles, err := j.fileSystem.ListFiles(pattern)
	if err != nil {
		return errors.Wrapf(err, "list %s", pattern)
	}

	merger, err := j.openShuffleRuns(intermediateFiles)
	if err != nil {
		return err
	}

	path := j.fileSystem.Join(j.outputPath, fmt.Sprintf("output-part-%d", binID))
	emitWriter, err := j.fileSystem.OpenWriter(path)
	if err != nil {
		merger.close()
		return errors.Wrapf(err, "open %s", path)
	}
	emitter := newReducerEmitter(emitWriter)

	err = reduceMerged(merger, reducer, emitter)
	merger.close()
	closeErr := emitter.close()
	atomic.AddInt64(&j.bytesWritten, emitter.bytesWritten())
	if err != nil {
		return errors.Wrapf(err, "reducer %d", binID)
	}
	if closeErr != nil {
		return errors.Wrapf(closeErr, "reducer %d", binID)
	}

	if j.cleanup {
		for _, file := range intermediateFiles {
			if err := j.fileSystem.Delete(file.Name); err != nil {
				log.Warnf("Could not delete %s: %s", file.Name, err)
			}
		}
	}
	return nil
}

// clearOutput removes everything j wrote to its output directory in an
// earlier run, so that stale parts are never read downstream.
func (j *Job) clearOutput() error {
	files, err := j.fileSystem.ListFiles(j.fileSystem.Join(j.outputPath, "*"))
	if err != nil {
		return errors.Wrapf(err, "list %s", j.outputPath)
	}
	for _, file := range files {
		if err := j.fileSystem.Delete(file.Name); err != nil {
			return errors.Wrapf(err, "delete %s", file.Name)
		}
	}
	return nil
}
