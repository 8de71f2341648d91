//go:build integration

package verscepter_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/DominicWuest/verscepter/pkg/verscepter"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Bisects busybox images, where the snippet fails on every version newer than 1.33.
func TestDockerBisection(t *testing.T) {
	versions := []verscepter.VersionRecord{}
	for _, v := range []string{"1.31.1", "1.32.1", "1.33.1", "1.34.1", "1.35.0", "1.36.1"} {
		versions = append(versions, verscepter.VersionRecord{Version: v})
	}

	job := verscepter.Job{
		Log:      logrus.StandardLogger(),
		Versions: versions,

		ExecutorType: verscepter.DockerExecutorType,
		Image:        "busybox:{{version}}",
		Script:       `busybox | head -n 1 | grep -q "v1.3[1-3]"`,
		Timeout:      5 * time.Minute,
	}

	job.Log.SetLevel(logrus.TraceLevel)
	job.Log.SetOutput(os.Stdout)

	report, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, verscepter.Success, report.Result)
	assert.Equal(t, "1.33.1", report.Boundary.LastGood.Version, "Bisection returned wrong version")
	assert.Equal(t, "1.34.1", report.Boundary.FirstBad.Version, "Bisection returned wrong version")
}
