package verscepter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dchest/uniuri"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/opencontainers/go-digest"
	"github.com/phayes/freeport"
	"github.com/sirupsen/logrus"
)

const (
	// The label set on every container created by verscepter
	containerLabel = "verscepter"
	// The label holding the digest of the script a container was started with
	snippetLabel = "verscepter.snippet"
	// Where the snippet directory is mounted inside a container
	snippetMountPath = "/snippet"
)

// containerSpec describes a container to be started
type containerSpec struct {
	Name  string
	Image string

	Cmd        []string
	Env        []string
	WorkingDir string
	Binds      []string

	Ports  map[int]int // Container port to host port
	Labels map[string]string
}

// containerRuntime is the subset of container operations needed by the DockerExecutor
type containerRuntime interface {
	// EnsureImage makes sure the passed image is present locally, pulling it if needed
	EnsureImage(ctx context.Context, image string) error
	// Start creates and starts a container and returns its ID
	Start(ctx context.Context, spec containerSpec) (string, error)
	// Wait waits for the container to exit and returns its exit code
	Wait(ctx context.Context, id string) (int64, error)
	// Logs returns the combined output of the container
	Logs(ctx context.Context, id string) (string, error)
	// Remove force removes the container
	Remove(ctx context.Context, id string) error
	Close() error
}

// A DockerExecutor runs the snippet under test inside a container of the version's image.
//
// If no healthchecks are set, the container's exit code decides whether a version is good.
// Otherwise, the container is expected to keep running and the version is good if all healthchecks succeed.
type DockerExecutor struct {
	// Image is the image to run for a version. The placeholder {{version}} is replaced with the version under test, e.g. node:{{version}}
	Image string

	Script string // The script to run inside the container using sh -c. If empty, the image's command is used

	SnippetPath string // Path to a directory which is mounted into the container at /snippet, also being the working directory

	Env map[string]string // Additional environment variables for the container

	Timeout time.Duration // How long a single run may take. Defaults to DefaultTimeout

	Ports        []int         // Container ports to publish
	Healthchecks []Healthcheck // The healthchecks deciding whether a running container is good

	Log *logrus.Entry

	runtime containerRuntime
}

// NewDockerExecutor creates a DockerExecutor connected to the docker daemon configured through the environment.
// The executor has to be closed using Close.
func NewDockerExecutor(imageTemplate string) (*DockerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create new docker client"), err)
	}
	return &DockerExecutor{
		Image:   imageTemplate,
		runtime: &dockerRuntime{cli: cli},
	}, nil
}

// Close closes the executor's connection to the docker daemon
func (e *DockerExecutor) Close() error {
	return e.runtime.Close()
}

// imageOf returns the image which runs the passed version
func (e *DockerExecutor) imageOf(version VersionRecord) string {
	return strings.ReplaceAll(e.Image, "{{version}}", version.Version)
}

// Run runs a container of the passed version and judges it
func (e *DockerExecutor) Run(ctx context.Context, version VersionRecord) (RunResult, error) {
	log := e.Log
	if log == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		log = logrus.NewEntry(logger)
	}

	timeout := e.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	imageName := e.imageOf(version)
	if err := e.runtime.EnsureImage(runCtx, imageName); err != nil {
		if res, ok := deadlineResult(ctx, runCtx); ok {
			return res, ctx.Err()
		}
		return Invalid, errors.Join(fmt.Errorf("failed to get image %s for version %s", imageName, version), err)
	}

	spec := containerSpec{
		Name:  "verscepter-" + uniuri.New(),
		Image: imageName,

		Env: versionEnv(version, e.Env),

		Ports: make(map[int]int),
		Labels: map[string]string{
			containerLabel: "1",
			snippetLabel:   digest.FromString(e.Script).Encoded(),
		},
	}
	if e.Script != "" {
		spec.Cmd = []string{"sh", "-c", e.Script}
	}
	if e.SnippetPath != "" {
		abs, err := filepath.Abs(e.SnippetPath)
		if err != nil {
			return Invalid, err
		}
		spec.Binds = []string{abs + ":" + snippetMountPath}
		spec.WorkingDir = snippetMountPath
	}

	// Assign free ports
	for _, healthcheck := range e.Healthchecks {
		spec.Ports[healthcheck.Port] = 0
	}
	for _, port := range e.Ports {
		spec.Ports[port] = 0
	}
	for port := range spec.Ports {
		freePort, err := freeport.GetFreePort()
		if err != nil {
			return Invalid, err
		}
		spec.Ports[port] = freePort
	}

	id, err := e.runtime.Start(runCtx, spec)
	if err != nil {
		if res, ok := deadlineResult(ctx, runCtx); ok {
			return res, ctx.Err()
		}
		return Invalid, errors.Join(fmt.Errorf("failed to start container %s of image %s", spec.Name, imageName), err)
	}
	defer func() {
		// Removal has to happen even if the run was cancelled
		if err := e.runtime.Remove(context.Background(), id); err != nil {
			log.Warnf("Failed to remove container %s - %v", spec.Name, err)
		}
	}()

	log.Infof("Started container %s running version %s", spec.Name, version)

	if len(e.Healthchecks) > 0 {
		return e.judgeHealthchecks(ctx, runCtx, spec, log)
	}

	exitCode, err := e.runtime.Wait(runCtx, id)
	if logs, logErr := e.runtime.Logs(context.Background(), id); logErr == nil {
		log.Tracef("Output of container %s:\n%s", spec.Name, logs)
	}
	if res, ok := deadlineResult(ctx, runCtx); ok {
		if res == Timeout {
			log.Warnf("Container %s running version %s timed out after %s", spec.Name, version, timeout)
			return Timeout, nil
		}
		return res, ctx.Err()
	}
	if err != nil {
		return Invalid, errors.Join(fmt.Errorf("failed to wait for container %s", spec.Name), err)
	}

	log.Debugf("Container %s running version %s exited with code %d", spec.Name, version, exitCode)
	if exitCode != 0 {
		return Failure, nil
	}
	return Success, nil
}

func (e *DockerExecutor) judgeHealthchecks(ctx, runCtx context.Context, spec containerSpec, log *logrus.Entry) (RunResult, error) {
	for _, healthcheck := range e.Healthchecks {
		success, err := healthcheck.performHealthcheck(runCtx, spec.Ports, log)
		if res, ok := deadlineResult(ctx, runCtx); ok {
			if res == Timeout {
				return Timeout, nil
			}
			return res, ctx.Err()
		}
		if !success {
			log.Infof("Healthcheck on port %d failed for container %s - %v", healthcheck.Port, spec.Name, err)
			return Failure, nil
		}
	}
	log.Infof("Successfully performed healthchecks on container %s", spec.Name)
	return Success, nil
}

// deadlineResult returns Invalid if parent was cancelled and Timeout if only the run's context expired.
// The returned boolean is false if neither is the case.
func deadlineResult(parent, run context.Context) (RunResult, bool) {
	if parent.Err() != nil {
		return Invalid, true
	}
	if errors.Is(run.Err(), context.DeadlineExceeded) {
		return Timeout, true
	}
	return Invalid, false
}

// dockerRuntime runs containers using the docker daemon
type dockerRuntime struct {
	cli *client.Client
}

func (d *dockerRuntime) EnsureImage(ctx context.Context, imageName string) error {
	if _, _, err := d.cli.ImageInspectWithRaw(ctx, imageName); err == nil {
		return nil
	} else if !errdefs.IsNotFound(err) {
		return err
	}

	out, err := d.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer out.Close()
	// Wait for pull to be done
	_, err = io.Copy(io.Discard, out)
	return err
}

func (d *dockerRuntime) Start(ctx context.Context, spec containerSpec) (string, error) {
	exposedPorts := make(nat.PortSet)
	portBindings := make(nat.PortMap)
	for port, hostPort := range spec.Ports {
		natPort, err := nat.NewPort("tcp", fmt.Sprint(port))
		if err != nil {
			return "", err
		}
		exposedPorts[natPort] = struct{}{}
		portBindings[natPort] = []nat.PortBinding{{HostPort: fmt.Sprint(hostPort)}}
	}

	containerConfig := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Cmd,
		Env:          spec.Env,
		WorkingDir:   spec.WorkingDir,
		ExposedPorts: exposedPorts,
		Labels:       spec.Labels,
	}
	hostConfig := &container.HostConfig{
		Binds:        spec.Binds,
		PortBindings: portBindings,
	}

	resp, err := d.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", err
	}
	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return resp.ID, err
	}
	return resp.ID, nil
}

func (d *dockerRuntime) Wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := d.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return status.StatusCode, errors.New(status.Error.Message)
		}
		return status.StatusCode, nil
	case err := <-errCh:
		return 0, err
	}
}

func (d *dockerRuntime) Logs(ctx context.Context, id string) (string, error) {
	out, err := d.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", err
	}
	defer out.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, out); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (d *dockerRuntime) Remove(ctx context.Context, id string) error {
	return d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

func (d *dockerRuntime) Close() error {
	return d.cli.Close()
}
