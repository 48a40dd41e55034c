package dirtlambda

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MaxLambdaRetries is the number of times a throttled invocation is
// retried before giving up.
const MaxLambdaRetries = 3

// LambdaClient wraps the AWS Lambda API and provides functions for
// deploying and invoking the pipeline's worker function.
type LambdaClient struct {
	Client     lambdaiface.LambdaAPI
	MaxRetries int
}

// FunctionConfig holds the deployment settings of the worker function.
type FunctionConfig struct {
	Name       string
	RoleARN    string
	Timeout    int64
	MemorySize int64

	// Environment is passed to the function. Workers read their pipeline
	// settings from it.
	Environment map[string]string

	// Package is the main package built for the function. Empty means the
	// package in the current directory.
	Package string
}

// NewLambdaClient initializes a new LambdaClient
func NewLambdaClient() *LambdaClient {
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))
	return &LambdaClient{
		Client:     lambda.New(sess),
		MaxRetries: MaxLambdaRetries,
	}
}

func functionNeedsUpdate(functionCode []byte, cfg *lambda.FunctionConfiguration) bool {
	codeHash := sha256.New()
	codeHash.Write(functionCode)
	codeHashDigest := base64.StdEncoding.EncodeToString(codeHash.Sum(nil))
	return codeHashDigest != aws.StringValue(cfg.CodeSha256)
}

func configNeedsUpdate(function *FunctionConfig, cfg *lambda.FunctionConfiguration) bool {
	return function.RoleARN != aws.StringValue(cfg.Role) ||
		function.Timeout != aws.Int64Value(cfg.Timeout) ||
		function.MemorySize != aws.Int64Value(cfg.MemorySize) ||
		environmentNeedsUpdate(function.Environment, cfg.Environment)
}

func environmentNeedsUpdate(env map[string]string, current *lambda.EnvironmentResponse) bool {
	var vars map[string]*string
	if current != nil {
		vars = current.Variables
	}
	if len(env) != len(vars) {
		return true
	}
	for k, v := range env {
		if cur, ok := vars[k]; !ok || aws.StringValue(cur) != v {
			return true
		}
	}
	return false
}

func environment(env map[string]string) *lambda.Environment {
	return &lambda.Environment{Variables: aws.StringMap(env)}
}

// DeployFunction builds the pipeline binary for Lambda and creates or
// updates the worker function. Unchanged functions are left alone.
func (l *LambdaClient) DeployFunction(function *FunctionConfig) error {
	functionCode, err := buildPackage(function.Package)
	if err != nil {
		return errors.Wrap(err, "build lambda package")
	}

	exists, err := l.getFunction(function.Name)
	if exists != nil && err == nil {
		return l.updateFunction(function, functionCode, exists.Configuration)
	}

	log.Infof("Creating Lambda function '%s'", function.Name)
	return l.createFunction(function, functionCode)
}

// DeleteFunction deletes the worker function.
func (l *LambdaClient) DeleteFunction(functionName string) error {
	deleteInput := &lambda.DeleteFunctionInput{
		FunctionName: aws.String(functionName),
	}

	_, err := l.Client.DeleteFunction(deleteInput)
	return err
}

func crossCompile(binName, pkg string) (string, error) {
	if pkg == "" {
		pkg = "."
	}

	tmpDir, err := ioutil.TempDir("", "dirt")
	if err != nil {
		return "", err
	}

	outputPath := filepath.Join(tmpDir, binName)

	args := []string{
		"build",
		"-o", outputPath,
		"-ldflags", "-s -w",
		pkg,
	}
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(), "GOOS=linux", "GOARCH=amd64", "CGO_ENABLED=0")

	combinedOut, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s\n%s", err, combinedOut)
	}

	return outputPath, nil
}

func buildPackage(pkg string) ([]byte, error) {
	log.Debugf("Compiling %s for Lambda", pkg)
	binFile, err := crossCompile("lambda_artifact", pkg)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(filepath.Dir(binFile))

	binReader, err := os.Open(binFile)
	if err != nil {
		return nil, err
	}
	defer binReader.Close()

	zipBuf := new(bytes.Buffer)
	archive := zip.NewWriter(zipBuf)
	header := &zip.FileHeader{
		Name:           "main",
		ExternalAttrs:  (0777 << 16), // File permissions
		CreatorVersion: (3 << 8),     // Magic number indicating a Unix creator
	}

	writer, err := archive.CreateHeader(header)
	if err != nil {
		return nil, err
	}

	if _, err = io.Copy(writer, binReader); err != nil {
		return nil, err
	}

	if err = archive.Close(); err != nil {
		return nil, err
	}
	return zipBuf.Bytes(), nil
}

func (l *LambdaClient) updateFunction(function *FunctionConfig, code []byte, current *lambda.FunctionConfiguration) error {
	if functionNeedsUpdate(code, current) {
		log.Infof("Updating Lambda function code for '%s'", function.Name)
		updateArgs := &lambda.UpdateFunctionCodeInput{
			ZipFile:      code,
			FunctionName: aws.String(function.Name),
		}
		if _, err := l.Client.UpdateFunctionCode(updateArgs); err != nil {
			return errors.Wrap(err, "update function code")
		}
	}

	if configNeedsUpdate(function, current) {
		log.Infof("Updating Lambda function config for '%s'", function.Name)
		configArgs := &lambda.UpdateFunctionConfigurationInput{
			FunctionName: aws.String(function.Name),
			Role:         aws.String(function.RoleARN),
			Timeout:      aws.Int64(function.Timeout),
			MemorySize:   aws.Int64(function.MemorySize),
			Environment:  environment(function.Environment),
		}
		if _, err := l.Client.UpdateFunctionConfiguration(configArgs); err != nil {
			return errors.Wrap(err, "update function configuration")
		}
	}
	return nil
}

func (l *LambdaClient) createFunction(function *FunctionConfig, code []byte) error {
	createArgs := &lambda.CreateFunctionInput{
		Code:         &lambda.FunctionCode{ZipFile: code},
		FunctionName: aws.String(function.Name),
		Handler:      aws.String("main"),
		Runtime:      aws.String(lambda.RuntimeGo1X),
		Role:         aws.String(function.RoleARN),
		Timeout:      aws.Int64(function.Timeout),
		MemorySize:   aws.Int64(function.MemorySize),
		Environment:  environment(function.Environment),
	}

	_, err := l.Client.CreateFunction(createArgs)
	return err
}

func (l *LambdaClient) getFunction(functionName string) (*lambda.GetFunctionOutput, error) {
	getInput := &lambda.GetFunctionInput{
		FunctionName: aws.String(functionName),
	}

	return l.Client.GetFunction(getInput)
}

// Invoke synchronously invokes the worker function with payload and
// returns its response. A function error fails the invocation. Only
// throttled invocations are retried, up to MaxRetries times.
func (l *LambdaClient) Invoke(functionName string, payload []byte) ([]byte, error) {
	invokeInput := &lambda.InvokeInput{
		FunctionName: aws.String(functionName),
		Payload:      payload,
	}

	maxRetries := l.MaxRetries
	if maxRetries <= 0 {
		maxRetries = MaxLambdaRetries
	}

	var err error
	for try := 0; try <= maxRetries; try++ {
		var output *lambda.InvokeOutput
		output, err = l.Client.Invoke(invokeInput)
		if isThrottle(err) {
			backoff := time.Duration(1<<uint(try)) * retryBackoff
			log.Debugf("Invocation of '%s' throttled (try %d), retrying in %s", functionName, try+1, backoff)
			time.Sleep(backoff)
			continue
		}
		if err != nil {
			return nil, err
		}
		if output.FunctionError != nil {
			return nil, fmt.Errorf("function error from %s: %s: %s", functionName, aws.StringValue(output.FunctionError), output.Payload)
		}
		return output.Payload, nil
	}
	return nil, errors.Wrapf(err, "invoke %s: out of retries", functionName)
}

// retryBackoff is the initial delay before retrying a throttled invocation.
var retryBackoff = 500 * time.Millisecond

func isThrottle(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		return aerr.Code() == lambda.ErrCodeTooManyRequestsException
	}
	return false
}
