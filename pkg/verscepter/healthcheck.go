package verscepter

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

type healthcheckYaml struct {
	Port int    `yaml:"port"`
	Type string `yaml:"type" default:"http"`

	Data string `yaml:"data"`

	Retries int `yaml:"retries" default:"10"`

	Backoff          int `yaml:"backoff" default:"1000"`
	BackoffIncrement int `yaml:"backoffIncrement" default:"100"`
	MaxBackoff       int `yaml:"maxBackoff" default:"2000"`
}

// HealthcheckConfig provides configurations for healthchecks being performed, such as the amount of retries or backoff duration
type HealthcheckConfig struct {
	Retries int // How many times this healthcheck should be retried until it is considered to have failed

	Backoff time.Duration // How long to wait between each healthcheck retry

	BackoffIncrement time.Duration // By how much to increment the backoff on each failed attempt
	MaxBackoff       time.Duration // The maximum duration the backoff may reach after incrementing. When the backoff has reached this value, it won't increase any further
}

// HealthcheckType decides how a healthcheck is performed and how its Data is interpreted
type HealthcheckType int

const (
	// Healthcheck consists of a single http GET request which has to return status 200. Healthcheck data holds the path to which the request is sent
	HttpGet200 HealthcheckType = iota
	// Healthcheck consists of a shell script which has to exit with status 0. Healthcheck data holds the script.
	// The script gets an environment variable PORT<port> for every mapped port, holding the port it was mapped to.
	Script
)

// A Healthcheck decides whether a version running in a container is good.
// A version is good if all of its healthchecks succeed.
type Healthcheck struct {
	Port      int             // The port on which the healthcheck should be performed
	CheckType HealthcheckType // The type of healthcheck to be performed

	Data   string            // Additional data for a given check type. Functionality depends on check type
	Config HealthcheckConfig // The config for this healthcheck
}

// performHealthcheck performs the given healthcheck of the passed port mappings.
// If the healthcheck is unsuccessful, the returned boolean is false and the error may not be nil.
// If the returned boolean is true, the returned error is nil.
// If ctx is done before the healthcheck succeeded, the error of ctx is returned.
func (h Healthcheck) performHealthcheck(ctx context.Context, portsMapping map[int]int, log *logrus.Entry) (bool, error) {
	var lastSuccess bool
	var lastError error

	backoffDuration := h.Config.Backoff
	for i := 0; i < h.Config.Retries; i++ {
		lastSuccess, lastError = h.performSingleHealthcheck(ctx, portsMapping)
		if lastSuccess {
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		log.Debugf("Healthcheck on port %d failed on try %d/%d - %v", h.Port, i+1, h.Config.Retries, lastError)

		// Manage backoff
		if i != h.Config.Retries-1 {
			select {
			case <-time.After(backoffDuration):
			case <-ctx.Done():
				return false, ctx.Err()
			}
			backoffDuration += h.Config.BackoffIncrement
			if backoffDuration > h.Config.MaxBackoff {
				backoffDuration = h.Config.MaxBackoff
			}
		}
	}

	return lastSuccess, lastError
}

// performSingleHealthcheck performs a single try of the given healthcheck of the passed port mappings.
// If the healthcheck is unsuccessful, the returned boolean is false and the error may not be nil.
// If the returned boolean is true, the returned error is nil
func (h Healthcheck) performSingleHealthcheck(ctx context.Context, portsMapping map[int]int) (bool, error) {
	switch h.CheckType {
	case HttpGet200:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%d%s", portsMapping[h.Port], h.Data), nil)
		if err != nil {
			return false, err
		}
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			return false, err
		}
		res.Body.Close()
		return res.StatusCode == http.StatusOK, nil
	case Script:
		cmd := exec.CommandContext(ctx, "sh", "-c", h.Data)
		killGroupOnCancel(cmd)
		cmd.Env = os.Environ()
		for port, mapped := range portsMapping {
			cmd.Env = append(cmd.Env, fmt.Sprintf("PORT%d=%d", port, mapped))
		}
		if err := cmd.Run(); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, fmt.Errorf("unknown healthcheck type %d", h.CheckType)
	}
}
