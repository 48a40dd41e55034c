package dirt

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"

	"github.com/bcongdon/dirt/internal/pkg/dirtfs"
	"github.com/bcongdon/dirt/internal/pkg/dirtiam"
	"github.com/bcongdon/dirt/internal/pkg/dirtlambda"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	lambdaJobs map[string]*Job
)

func setLambdaJobs(jobs []*Job) {
	lambdaJobs = make(map[string]*Job, len(jobs))
	for _, job := range jobs {
		lambdaJobs[job.Name] = job
	}
}

// runningInLambda infers if the program is running in AWS lambda via inspection of the environment
func runningInLambda() bool {
	expectedEnvVars := []string{"LAMBDA_TASK_ROOT", "AWS_EXECUTION_ENV", "LAMBDA_RUNTIME_DIR"}
	for _, envVar := range expectedEnvVars {
		if os.Getenv(envVar) == "" {
			return false
		}
	}
	return true
}

// handleRequest runs one task inside a Lambda worker. A warm worker keeps
// its broadcast tables between invocations of the same run.
func handleRequest(ctx context.Context, t task) (taskResult, error) {
	job, ok := lambdaJobs[t.JobName]
	if !ok {
		return taskResult{}, errors.Errorf("unknown stage %q", t.JobName)
	}

	fs := dirtfs.InitFilesystem(t.FileSystemType)
	job.prepare(fs, t.WorkingLocation, t.RunID)
	job.intermediateBins = t.IntermediateBins
	job.combine = t.Combine
	job.cleanup = t.Cleanup

	var err error
	switch t.Phase {
	case MapPhase:
		err = job.runMapper(t.BinID, t.Splits)
	case ReducePhase:
		err = job.runReducer(t.BinID)
	default:
		err = errors.Errorf("unknown phase: %d", t.Phase)
	}

	result := taskResult{
		BytesRead:    atomic.LoadInt64(&job.bytesRead),
		BytesWritten: atomic.LoadInt64(&job.bytesWritten),
	}
	return result, err
}

type lambdaExecutor struct {
	*dirtlambda.LambdaClient
	*dirtiam.IAMClient
	functionName string
}

func newLambdaExecutor(functionName string) *lambdaExecutor {
	client := dirtlambda.NewLambdaClient()
	client.MaxRetries = viper.GetInt("lambda_max_retries")
	return &lambdaExecutor{
		LambdaClient: client,
		IAMClient:    dirtiam.NewIAMClient(),
		functionName: functionName,
	}
}

func (l *lambdaExecutor) newTask(job *Job, phase Phase, binID uint) task {
	return task{
		JobName:          job.Name,
		RunID:            job.runID,
		Phase:            phase,
		BinID:            binID,
		IntermediateBins: job.intermediateBins,
		FileSystemType:   dirtfs.S3,
		WorkingLocation:  job.workingLocation,
		Combine:          job.combine,
		Cleanup:          job.cleanup,
	}
}

func (l *lambdaExecutor) invoke(job *Job, t task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}

	output, err := l.Invoke(l.functionName, payload)
	if err != nil {
		return err
	}

	var result taskResult
	if err := json.Unmarshal(output, &result); err != nil {
		log.Debugf("Could not decode result of %s task %d: %s", t.Phase, t.BinID, err)
		return nil
	}
	atomic.AddInt64(&job.bytesRead, result.BytesRead)
	atomic.AddInt64(&job.bytesWritten, result.BytesWritten)
	return nil
}

func (l *lambdaExecutor) RunMapper(job *Job, binID uint, inputSplits []inputSplit) error {
	t := l.newTask(job, MapPhase, binID)
	t.Splits = inputSplits
	return l.invoke(job, t)
}

func (l *lambdaExecutor) RunReducer(job *Job, binID uint) error {
	return l.invoke(job, l.newTask(job, ReducePhase, binID))
}

func (l *lambdaExecutor) roleName() string {
	return l.functionName + "_role"
}

// Deploy creates or updates the worker function. Unless
// lambda_manage_role is disabled, the worker's IAM role is deployed too;
// otherwise lambda_role_arn names an existing role.
func (l *lambdaExecutor) Deploy() error {
	roleARN := viper.GetString("lambda_role_arn")
	if viper.GetBool("lambda_manage_role") {
		arn, err := l.DeployPermissions(l.roleName())
		if err != nil {
			return errors.Wrap(err, "deploy worker permissions")
		}
		roleARN = arn
	}

	function := &dirtlambda.FunctionConfig{
		Name:        l.functionName,
		RoleARN:     roleARN,
		Timeout:     viper.GetInt64("lambda_timeout"),
		MemorySize:  viper.GetInt64("lambda_memory"),
		Environment: lambdaEnvironment(),
		Package:     viper.GetString("lambda_package"),
	}
	log.Debugf("Deploying worker function %s", function.Name)
	return errors.Wrap(l.DeployFunction(function), "deploy worker function")
}

// Undeploy removes the worker function and, if it is managed, its role.
func (l *lambdaExecutor) Undeploy() error {
	log.Infof("Deleting Lambda function '%s'", l.functionName)
	if err := l.DeleteFunction(l.functionName); err != nil {
		return errors.Wrap(err, "delete worker function")
	}
	if viper.GetBool("lambda_manage_role") {
		return l.DeletePermissions(l.roleName())
	}
	return nil
}
