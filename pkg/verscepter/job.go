package verscepter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/dchest/uniuri"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"
)

type jobYaml struct {
	Versions     []versionYaml `yaml:"versions"`
	SortBySemver bool          `yaml:"sortBySemver"`

	Good string `yaml:"good"`
	Bad  string `yaml:"bad"`

	CompareURL string `yaml:"compareUrl"`

	MaxConcurrent uint `yaml:"maxConcurrent"`

	Executor executorYaml `yaml:"executor"`
}

type versionYaml struct {
	Version string `yaml:"version"`
	Source  string `yaml:"source" default:"remote"`
	State   string `yaml:"state" default:"installed"`
}

// UnmarshalYAML allows versions to be listed as plain strings
func (v *versionYaml) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		v.Version = node.Value
		return nil
	}
	type plain versionYaml
	return node.Decode((*plain)(v))
}

type executorYaml struct {
	Type string `yaml:"type" default:"script"`

	Script      string `yaml:"script"`
	SnippetPath string `yaml:"snippetPath"`

	Env map[string]string `yaml:"env"`

	Timeout int `yaml:"timeout" default:"60000"`

	Image       string            `yaml:"image"`
	Port        int               `yaml:"port"`
	Ports       []int             `yaml:"ports"`
	Healthcheck []healthcheckYaml `yaml:"healthcheck"`
}

// ExecutorType selects how a job runs versions
type ExecutorType int

const (
	// Run a script on the local machine, see ScriptExecutor
	ScriptExecutorType ExecutorType = iota
	// Run a container per version, see DockerExecutor
	DockerExecutorType
)

// GetJobFromConfig reads in a job config in yaml format from a reader and initializes the corresponding job struct
func GetJobFromConfig(r io.Reader) (*Job, error) {
	var config jobYaml

	// Read in yaml
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}
	if err := defaults.Set(&config.Executor); err != nil {
		return nil, err
	}

	// Convert to Job struct
	job := Job{
		SortBySemver: config.SortBySemver,

		GoodVersion: config.Good,
		BadVersion:  config.Bad,

		CompareURL: config.CompareURL,

		MaxConcurrent: config.MaxConcurrent,

		Script:      config.Executor.Script,
		SnippetPath: config.Executor.SnippetPath,
		Env:         config.Executor.Env,
		Timeout:     time.Duration(config.Executor.Timeout) * time.Millisecond,
		Image:       config.Executor.Image,
	}

	for _, v := range config.Versions {
		if err := defaults.Set(&v); err != nil {
			return nil, err
		}
		source, err := ParseVersionSource(v.Source)
		if err != nil {
			return nil, err
		}
		state, err := ParseInstallState(v.State)
		if err != nil {
			return nil, err
		}
		job.Versions = append(job.Versions, VersionRecord{Version: v.Version, Source: source, State: state})
	}

	executorTypes := map[string]ExecutorType{
		"script": ScriptExecutorType,
		"docker": DockerExecutorType,
	}
	executorType, ok := executorTypes[strings.ToLower(config.Executor.Type)]
	if !ok {
		return nil, fmt.Errorf("invalid executor type supplied %s", config.Executor.Type)
	}
	job.ExecutorType = executorType

	job.Ports = config.Executor.Ports
	if config.Executor.Port != 0 {
		job.Ports = []int{config.Executor.Port}
	}

	// Set all the healthchecks
	checkTypes := map[string]HealthcheckType{
		"http":   HttpGet200,
		"script": Script,
	}
	for _, check := range config.Executor.Healthcheck {
		if err := defaults.Set(&check); err != nil {
			return nil, err
		}
		checkType, ok := checkTypes[strings.ToLower(check.Type)]
		if !ok {
			return nil, fmt.Errorf("invalid check type supplied for healthcheck %s", check.Type)
		}

		job.Healthchecks = append(job.Healthchecks, Healthcheck{
			Port:      check.Port,
			CheckType: checkType,

			Data: check.Data,
			Config: HealthcheckConfig{
				Retries: check.Retries,

				Backoff: time.Duration(check.Backoff) * time.Millisecond,

				BackoffIncrement: time.Duration(check.BackoffIncrement) * time.Millisecond,
				MaxBackoff:       time.Duration(check.MaxBackoff) * time.Millisecond,
			},
		})
	}

	return &job, nil
}

// A Job describes the bisection of one regression over a catalog of versions
type Job struct {
	Versions     []VersionRecord // The version catalog, ordered chronologically unless SortBySemver is set
	SortBySemver bool            // Whether the catalog should be ordered by semantic version before selecting the range

	GoodVersion string // The version which does not exhibit the regression. Defaults to the oldest version of the catalog
	BadVersion  string // The version which exhibits the regression. Defaults to the newest version of the catalog

	CompareURL string // Template for a link to the changes between the found versions, see Boundary.CompareURL

	MaxConcurrent uint // The max amount of jobs bisected concurrently when run together with other jobs, or 0 if no limit

	ExecutorType ExecutorType      // How versions are run during an automated bisection
	Script       string            // The script to run for a version
	SnippetPath  string            // The path to the directory holding the snippet under test
	Env          map[string]string // Additional environment variables for the script
	Timeout      time.Duration     // How long running a single version may take

	Image        string        // The image template for the docker executor
	Ports        []int         // The ports the docker executor publishes
	Healthchecks []Healthcheck // The healthchecks for the docker executor

	Log *logrus.Logger // The log to which information gets printed to
}

func (job *Job) logger() *logrus.Logger {
	// Init the logger
	if job.Log == nil {
		// Mute logger
		job.Log = logrus.New()
		job.Log.SetOutput(io.Discard)
	}
	return job.Log
}

// Range returns the versions to be bisected, ordered oldest first
func (job *Job) Range() ([]VersionRecord, error) {
	catalog := job.Versions
	if job.SortBySemver {
		catalog = append([]VersionRecord(nil), job.Versions...)
		if err := SortBySemver(catalog); err != nil {
			return nil, err
		}
	}
	if len(catalog) < 2 {
		return nil, invalidRange(len(catalog))
	}

	startIndex, endIndex := 0, len(catalog)-1
	if job.GoodVersion != "" {
		if startIndex = IndexOf(catalog, job.GoodVersion); startIndex < 0 {
			return nil, fmt.Errorf("good version %s is not part of the versions", job.GoodVersion)
		}
	}
	if job.BadVersion != "" {
		if endIndex = IndexOf(catalog, job.BadVersion); endIndex < 0 {
			return nil, fmt.Errorf("bad version %s is not part of the versions", job.BadVersion)
		}
	}

	return SelectRange(catalog, startIndex, endIndex)
}

// NewExecutor creates the executor configured for this job.
// The returned close function has to be called once the executor isn't used anymore.
func (job *Job) NewExecutor(log *logrus.Entry) (Executor, func() error, error) {
	switch job.ExecutorType {
	case ScriptExecutorType:
		if job.Script == "" {
			return nil, nil, errors.New("script executor needs a script")
		}
		return &ScriptExecutor{
			Script:      job.Script,
			SnippetPath: job.SnippetPath,
			Env:         job.Env,
			Timeout:     job.Timeout,
			Log:         log,
		}, func() error { return nil }, nil
	case DockerExecutorType:
		if job.Image == "" {
			return nil, nil, errors.New("docker executor needs an image")
		}
		executor, err := NewDockerExecutor(job.Image)
		if err != nil {
			return nil, nil, err
		}
		executor.Script = job.Script
		executor.SnippetPath = job.SnippetPath
		executor.Env = job.Env
		executor.Timeout = job.Timeout
		executor.Ports = job.Ports
		executor.Healthchecks = job.Healthchecks
		executor.Log = log
		return executor, executor.Close, nil
	}
	return nil, nil, fmt.Errorf("%d is not a valid executor type", job.ExecutorType)
}

// Run bisects the job's range automatically using the job's executor
func (job *Job) Run(ctx context.Context) (Report, error) {
	log := job.logger().WithField("bisection-id", uniuri.New())

	versions, err := job.Range()
	if err != nil {
		return Report{}, err
	}

	executor, closeExecutor, err := job.NewExecutor(log)
	if err != nil {
		return Report{}, err
	}
	defer func() {
		if err := closeExecutor(); err != nil {
			log.Warnf("Failed to close executor - %v", err)
		}
	}()

	return job.runWith(ctx, executor, versions, log)
}

func (job *Job) runWith(ctx context.Context, executor Executor, versions []VersionRecord, log *logrus.Entry) (Report, error) {
	runner := NewRunner(executor, log)
	runner.CompareURL = job.CompareURL
	runner.Timeout = job.Timeout
	if runner.Timeout == 0 {
		runner.Timeout = DefaultTimeout
	}
	return runner.AutoBisect(ctx, versions)
}

// StartSession starts a manual bisection of the job's range
func (job *Job) StartSession() (*Session, error) {
	versions, err := job.Range()
	if err != nil {
		return nil, err
	}
	return StartSession(versions, logrus.NewEntry(job.logger()))
}

// RunJobs runs the passed jobs concurrently, each with its own executor.
// ConcurrencyLimit returns the strictest MaxConcurrent of the passed jobs, or 0 if none of them sets a limit
func ConcurrencyLimit(jobs []*Job) uint {
	var limit uint
	for _, job := range jobs {
		if job.MaxConcurrent != 0 && (limit == 0 || job.MaxConcurrent < limit) {
			limit = job.MaxConcurrent
		}
	}
	return limit
}

// At most maxConcurrent jobs run at once, or all of them if maxConcurrent is 0.
// The returned reports are in the order of the passed jobs, the returned error joins the errors of all failed jobs.
func RunJobs(ctx context.Context, jobs []*Job, maxConcurrent uint) ([]Report, error) {
	if maxConcurrent == 0 {
		maxConcurrent = math.MaxInt
	}
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	reports := make([]Report, len(jobs))
	errs := make([]error, len(jobs))

	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job *Job) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				errs[i] = err
				return
			}
			defer sem.Release(1)

			reports[i], errs[i] = job.Run(ctx)
			if errs[i] != nil {
				errs[i] = errors.Join(fmt.Errorf("job %d failed", i), errs[i])
			}
		}(i, job)
	}
	wg.Wait()

	return reports, errors.Join(errs...)
}
