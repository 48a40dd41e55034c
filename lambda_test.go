package dirt

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	"github.com/bcongdon/dirt/internal/pkg/dirtfs"
	"github.com/bcongdon/dirt/internal/pkg/dirtlambda"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunningInLambda(t *testing.T) {
	envVars := []string{"LAMBDA_TASK_ROOT", "AWS_EXECUTION_ENV", "LAMBDA_RUNTIME_DIR"}
	for _, env := range envVars {
		os.Unsetenv(env)
	}
	assert.False(t, runningInLambda())

	for _, env := range envVars {
		os.Setenv(env, "value")
		defer os.Unsetenv(env)
	}
	assert.True(t, runningInLambda())
}

func TestHandleRequest(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	writeTestFile(t, input, "the cat\nthe dog\n")

	job := NewJob("count", wordCountMapper(), sumReducer())
	setLambdaJobs([]*Job{job})

	// Counters from earlier invocations must not leak into the result
	job.bytesRead = 10
	job.bytesWritten = 20

	mapTask := task{
		JobName:          "count",
		RunID:            "run",
		Phase:            MapPhase,
		BinID:            0,
		Splits:           []inputSplit{{Filename: input, StartOffset: 0, EndOffset: 15}},
		IntermediateBins: 1,
		FileSystemType:   dirtfs.Local,
		WorkingLocation:  dir,
	}
	result, err := handleRequest(context.Background(), mapTask)
	require.Nil(t, err)
	assert.Equal(t, int64(16), result.BytesRead)
	assert.True(t, result.BytesWritten > 0)

	reduceTask := mapTask
	reduceTask.Phase = ReducePhase
	reduceTask.Splits = nil
	result, err = handleRequest(context.Background(), reduceTask)
	require.Nil(t, err)
	assert.True(t, result.BytesRead > 0)
	assert.Equal(t, "cat\t1\ndog\t1\nthe\t2\n", readTestFile(t, filepath.Join(dir, "count", "output-part-0")))
}

func TestHandleRequestUnknownStage(t *testing.T) {
	setLambdaJobs([]*Job{NewJob("count", wordCountMapper(), nil)})

	_, err := handleRequest(context.Background(), task{JobName: "missing", FileSystemType: dirtfs.Local})
	assert.EqualError(t, err, `unknown stage "missing"`)
}

type mockLambdaClient struct {
	lambdaiface.LambdaAPI
	capturedPayload []byte
	response        []byte
	functionError   *string
}

func (m *mockLambdaClient) Invoke(input *lambda.InvokeInput) (*lambda.InvokeOutput, error) {
	m.capturedPayload = input.Payload
	return &lambda.InvokeOutput{
		Payload:       m.response,
		FunctionError: m.functionError,
	}, nil
}

func testLambdaExecutor(mock *mockLambdaClient) *lambdaExecutor {
	return &lambdaExecutor{
		LambdaClient: &dirtlambda.LambdaClient{Client: mock},
		functionName: "FunctionName",
	}
}

func lambdaTestJob() *Job {
	job := NewJob("scores", wordCountMapper(), sumReducer())
	job.prepare(&dirtfs.LocalFileSystem{}, "s3://bucket/work", "run")
	job.intermediateBins = 3
	job.combine = true
	return job
}

func TestLambdaExecutorRunMapper(t *testing.T) {
	mock := &mockLambdaClient{response: []byte(`{"BytesRead":5,"BytesWritten":7}`)}
	executor := testLambdaExecutor(mock)
	job := lambdaTestJob()

	splits := []inputSplit{{Filename: "s3://bucket/in.txt", StartOffset: 0, EndOffset: 99}}
	require.Nil(t, executor.RunMapper(job, 2, splits))

	var sent task
	require.Nil(t, json.Unmarshal(mock.capturedPayload, &sent))
	assert.Equal(t, task{
		JobName:          "scores",
		RunID:            "run",
		Phase:            MapPhase,
		BinID:            2,
		Splits:           splits,
		IntermediateBins: 3,
		FileSystemType:   dirtfs.S3,
		WorkingLocation:  "s3://bucket/work",
		Combine:          true,
	}, sent)

	assert.Equal(t, int64(5), job.bytesRead)
	assert.Equal(t, int64(7), job.bytesWritten)
}

func TestLambdaExecutorRunReducer(t *testing.T) {
	mock := &mockLambdaClient{response: []byte(`{"BytesRead":1,"BytesWritten":1}`)}
	executor := testLambdaExecutor(mock)
	job := lambdaTestJob()

	require.Nil(t, executor.RunReducer(job, 1))

	var sent task
	require.Nil(t, json.Unmarshal(mock.capturedPayload, &sent))
	assert.Equal(t, ReducePhase, sent.Phase)
	assert.Equal(t, uint(1), sent.BinID)
	assert.Empty(t, sent.Splits)
}

func TestLambdaExecutorFunctionError(t *testing.T) {
	mock := &mockLambdaClient{
		response:      []byte(`{"errorMessage":"load broadcast marginals: no files"}`),
		functionError: aws.String("Unhandled"),
	}
	executor := testLambdaExecutor(mock)

	err := executor.RunReducer(lambdaTestJob(), 0)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "load broadcast marginals")
}

func TestLambdaExecutorRoleName(t *testing.T) {
	assert.Equal(t, "dirt_function_role", (&lambdaExecutor{functionName: "dirt_function"}).roleName())
}

func TestLambdaEnvironment(t *testing.T) {
	loadConfig()
	viper.Set("skew_cap", 50)
	defer viper.Set("skew_cap", 100)

	env := lambdaEnvironment()
	assert.Equal(t, "50", env["DIRT_SKEW_CAP"])
	assert.Equal(t, "heuristic", env["DIRT_STEMMER"])
	assert.Equal(t, "true", env["DIRT_COMBINE"])
	for key := range env {
		assert.NotContains(t, key, "DIRT_LAMBDA")
	}
}
