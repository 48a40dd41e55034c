package dirt

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/bcongdon/dirt/internal/pkg/dirtfs"
	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	pb "gopkg.in/cheggaaa/pb.v1"
)

// Driver controls the execution of a pipeline of Jobs. Stages run as soon
// as every stage they depend on has completed; independent stages run
// concurrently.
type Driver struct {
	jobs     []*Job
	options  []Option
	config   *config
	executor executor
	sem      *semaphore.Weighted
}

// config configures a Driver's execution of jobs
type config struct {
	Inputs          []string
	SplitSize       int64
	MapBinSize      int64
	ReduceBinSize   int64
	MaxConcurrency  int
	WorkingLocation string
	ReduceBins      uint
	Combine         bool
	Cleanup         bool
	Verbose         bool
	Stage           string
	Lambda          bool
}

func newConfig() *config {
	loadConfig() // Load viper config from settings file(s) and environment
	return &config{
		Inputs:          []string{},
		SplitSize:       viper.GetInt64("split_size"),
		MapBinSize:      viper.GetInt64("map_bin_size"),
		ReduceBinSize:   viper.GetInt64("reduce_bin_size"),
		MaxConcurrency:  viper.GetInt("max_concurrency"),
		WorkingLocation: viper.GetString("working_location"),
		ReduceBins:      uint(viper.GetInt("reduce_bins")),
		Combine:         viper.GetBool("combine"),
		Cleanup:         viper.GetBool("cleanup"),
		Verbose:         viper.GetBool("verbose"),
		Stage:           viper.GetString("stage"),
		Lambda:          viper.GetBool("lambda"),
	}
}

// Option allows configuration of a Driver
type Option func(*config)

// NewDriver creates a new Driver with the provided job and optional configuration
func NewDriver(job *Job, options ...Option) *Driver {
	return NewMultiStageDriver([]*Job{job}, options...)
}

// NewMultiStageDriver creates a Driver for a pipeline of jobs. Stage
// dependencies are taken from each job's InputStages and Broadcasts.
func NewMultiStageDriver(jobs []*Job, options ...Option) *Driver {
	d := &Driver{
		jobs:     jobs,
		options:  options,
		executor: localExecutor{},
	}
	d.configure()
	return d
}

func (d *Driver) configure() {
	c := newConfig()
	for _, f := range d.options {
		f(c)
	}

	if c.SplitSize > c.MapBinSize {
		log.Warn("Configured Split Size is larger than Map Bin size")
		c.SplitSize = c.MapBinSize
	}
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = 1
	}

	if c.Verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	d.config = c
	log.Debugf("Loaded config: %#v", c)
}

// WithSplitSize sets the SplitSize of the Driver
func WithSplitSize(s int64) Option {
	return func(c *config) {
		c.SplitSize = s
	}
}

// WithMapBinSize sets the MapBinSize of the Driver
func WithMapBinSize(s int64) Option {
	return func(c *config) {
		c.MapBinSize = s
	}
}

// WithReduceBinSize sets the ReduceBinSize of the Driver
func WithReduceBinSize(s int64) Option {
	return func(c *config) {
		c.ReduceBinSize = s
	}
}

// WithWorkingLocation sets the location and filesystem backend of the Driver
func WithWorkingLocation(location string) Option {
	return func(c *config) {
		c.WorkingLocation = location
	}
}

// WithInputs adds input globs read by stages that declare no inputs of
// their own.
func WithInputs(inputs ...string) Option {
	return func(c *config) {
		c.Inputs = append(c.Inputs, inputs...)
	}
}

// WithMaxConcurrency bounds the number of tasks running at once.
func WithMaxConcurrency(n int) Option {
	return func(c *config) {
		c.MaxConcurrency = n
	}
}

// WithReduceBins fixes the number of reduce tasks per stage.
func WithReduceBins(n uint) Option {
	return func(c *config) {
		c.ReduceBins = n
	}
}

// WithCombine enables or disables the jobs' combiners.
func WithCombine(enabled bool) Option {
	return func(c *config) {
		c.Combine = enabled
	}
}

// WithCleanup enables deletion of shuffle files after each reduce task.
func WithCleanup(enabled bool) Option {
	return func(c *config) {
		c.Cleanup = enabled
	}
}

// WithStage restricts a run to the named stage. Its upstream stages are
// assumed to have completed in an earlier run.
func WithStage(name string) Option {
	return func(c *config) {
		c.Stage = name
	}
}

// stageOrder validates the stage graph and returns the jobs in an order in
// which every job follows its dependencies.
func stageOrder(jobs []*Job) ([]*Job, error) {
	byName := make(map[string]*Job, len(jobs))
	for _, job := range jobs {
		if job.Name == "" {
			return nil, errors.New("stage without a name")
		}
		if _, dup := byName[job.Name]; dup {
			return nil, errors.Errorf("duplicate stage %s", job.Name)
		}
		byName[job.Name] = job
	}

	pending := make(map[string]int, len(jobs))
	dependents := make(map[string][]*Job)
	for _, job := range jobs {
		for _, dep := range job.dependencies() {
			if _, ok := byName[dep]; !ok {
				return nil, errors.Errorf("stage %s depends on unknown stage %s", job.Name, dep)
			}
			pending[job.Name]++
			dependents[dep] = append(dependents[dep], job)
		}
	}

	order := make([]*Job, 0, len(jobs))
	for _, job := range jobs {
		if pending[job.Name] == 0 {
			order = append(order, job)
		}
	}
	for i := 0; i < len(order); i++ {
		for _, next := range dependents[order[i].Name] {
			pending[next.Name]--
			if pending[next.Name] == 0 {
				order = append(order, next)
			}
		}
	}

	if len(order) != len(jobs) {
		return nil, errors.New("stage dependencies form a cycle")
	}
	return order, nil
}

// selectStages returns the stages of this run.
func (d *Driver) selectStages() ([]*Job, error) {
	order, err := stageOrder(d.jobs)
	if err != nil {
		return nil, err
	}
	if d.config.Stage == "" {
		return order, nil
	}

	for _, job := range order {
		if job.Name == d.config.Stage {
			return []*Job{job}, nil
		}
	}
	return nil, errors.Errorf("unknown stage %s", d.config.Stage)
}

// Run executes the pipeline. The first failing task cancels the run; no
// task is retried.
func (d *Driver) Run(ctx context.Context) error {
	stages, err := d.selectStages()
	if err != nil {
		return err
	}

	fsType := dirtfs.InferType(d.config.WorkingLocation)
	if d.config.Lambda {
		if fsType != dirtfs.S3 {
			return errors.Errorf("lambda execution needs an s3:// working location, got %q", d.config.WorkingLocation)
		}
		executor := newLambdaExecutor(viper.GetString("lambda_function_name"))
		if err := executor.Deploy(); err != nil {
			return err
		}
		d.executor = executor
	}

	fs := dirtfs.InitFilesystem(fsType)
	runID := strconv.FormatInt(time.Now().UnixNano(), 36)
	for _, job := range stages {
		job.prepare(fs, d.config.WorkingLocation, runID)
		job.combine = d.config.Combine
		job.cleanup = d.config.Cleanup
	}

	d.sem = semaphore.NewWeighted(int64(d.config.MaxConcurrency))

	done := make(map[string]chan struct{}, len(stages))
	for _, job := range stages {
		done[job.Name] = make(chan struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range stages {
		job := job
		g.Go(func() error {
			for _, dep := range job.dependencies() {
				ch, ok := done[dep]
				if !ok {
					continue // not part of this run
				}
				select {
				case <-ch:
				case <-gctx.Done():
					return gctx.Err()
				}
			}

			if err := d.runStage(gctx, job); err != nil {
				return errors.Wrapf(err, "stage %s", job.Name)
			}
			close(done[job.Name])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// reduceBins returns the number of reduce tasks for a stage whose input
// totals inputSize bytes.
func (d *Driver) reduceBins(inputSize int64) uint {
	if d.config.ReduceBins > 0 {
		return d.config.ReduceBins
	}
	if d.config.ReduceBinSize <= 0 {
		return 1
	}
	bins := (inputSize + d.config.ReduceBinSize - 1) / d.config.ReduceBinSize
	if bins < 1 {
		bins = 1
	}
	return uint(bins)
}

func (d *Driver) runStage(ctx context.Context, job *Job) error {
	start := time.Now()
	log.Infof("Starting stage %s", job.Name)

	if err := job.clearOutput(); err != nil {
		return err
	}

	globs := job.inputGlobs(d.config.Inputs)
	if len(globs) == 0 {
		return errors.New("no inputs")
	}

	inputSplits, err := job.inputSplits(globs, d.config.SplitSize)
	if err != nil {
		return err
	}
	inputSize := int64(0)
	for _, split := range inputSplits {
		inputSize += split.Size()
	}
	log.Debugf("Stage %s: %d input splits, %s", job.Name, len(inputSplits), humanize.Bytes(uint64(inputSize)))

	if !job.MapOnly() {
		job.intermediateBins = d.reduceBins(inputSize)
	}

	inputBins := packInputSplits(inputSplits, d.config.MapBinSize)
	log.Debugf("Stage %s: %d map tasks", job.Name, len(inputBins))
	if err := d.runMapPhase(ctx, job, inputBins); err != nil {
		return err
	}

	if !job.MapOnly() {
		if err := d.runReducePhase(ctx, job); err != nil {
			return err
		}
	}

	log.Infof("Finished stage %s in %s (read %s, wrote %s)", job.Name, time.Since(start),
		humanize.Bytes(uint64(atomic.LoadInt64(&job.bytesRead))),
		humanize.Bytes(uint64(atomic.LoadInt64(&job.bytesWritten))))
	return nil
}

func (d *Driver) runMapPhase(ctx context.Context, job *Job, inputBins [][]inputSplit) error {
	bar := pb.New(len(inputBins)).Prefix(job.Name + " map").Start()
	defer bar.Finish()

	g, gctx := errgroup.WithContext(ctx)
	for binID, bin := range inputBins {
		if err := d.sem.Acquire(gctx, 1); err != nil {
			break
		}
		bID, b := uint(binID), bin
		g.Go(func() error {
			defer d.sem.Release(1)
			defer bar.Increment()
			err := d.executor.RunMapper(job, bID, b)
			return errors.Wrapf(err, "mapper %d", bID)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (d *Driver) runReducePhase(ctx context.Context, job *Job) error {
	bar := pb.New(int(job.intermediateBins)).Prefix(job.Name + " reduce").Start()
	defer bar.Finish()

	g, gctx := errgroup.WithContext(ctx)
	for binID := uint(0); binID < job.intermediateBins; binID++ {
		if err := d.sem.Acquire(gctx, 1); err != nil {
			break
		}
		bID := binID
		g.Go(func() error {
			defer d.sem.Release(1)
			defer bar.Increment()
			err := d.executor.RunReducer(job, bID)
			return errors.Wrapf(err, "reducer %d", bID)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Main parses the command line, then either serves tasks (when running
// inside AWS Lambda) or runs the pipeline and exits non-zero on failure.
func (d *Driver) Main() {
	ParseFlags()
	d.configure()

	if runningInLambda() {
		setLambdaJobs(d.jobs)
		lambda.Start(handleRequest)
		return
	}

	if viper.GetBool("undeploy") {
		if err := newLambdaExecutor(viper.GetString("lambda_function_name")).Undeploy(); err != nil {
			log.Fatal(err)
		}
		return
	}

	d.config.Inputs = append(d.config.Inputs, pflag.Args()...)

	start := time.Now()
	if err := d.Run(context.Background()); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Job Execution Time: %s\n", time.Since(start))

	if memprofile := viper.GetString("memprofile"); memprofile != "" {
		f, err := os.Create(memprofile)
		if err != nil {
			log.Fatal("could not create memory profile: ", err)
		}
		runtime.GC() // get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
		f.Close()
	}
}
