package deploy

import (
	"context"
	"strings"

	"github.com/cuemby/cephdeploy/pkg/cephadm"
	"github.com/cuemby/cephdeploy/pkg/remote"
)

const badnessPattern = `\[ERR\]|\[WRN\]|\[SEC\]`

// severities in the order they are preferred as failure reason
var severities = []string{`\[SEC\]`, `\[ERR\]`, `\[WRN\]`}

// checkClusterLog marks the run failed when it is unwinding an error or when
// the cluster log holds unexpected warnings or errors, and picks the most
// severe log line as the failure reason. The scan is a diagnostic only.
func (d *Deployer) checkClusterLog(ctx context.Context, cause error) error {
	if cause != nil {
		d.fail("")
	}
	if d.state.FSID == "" || d.state.BootstrapHost == "" {
		return nil
	}

	d.logger.Info().Msg("Checking cluster log for badness")
	match, err := d.firstInClusterLog(ctx, badnessPattern)
	if err != nil {
		return err
	}
	if match == "" {
		return nil
	}

	d.logger.Warn().Msg("Found errors (ERR|WRN|SEC) in cluster log")
	if d.Summary().FailureReason != "" {
		d.fail("")
		return nil
	}
	for _, pattern := range severities {
		line, err := d.firstInClusterLog(ctx, pattern)
		if err != nil {
			return err
		}
		if line != "" {
			d.fail(`"` + line + `" in cluster log`)
			return nil
		}
	}
	d.fail("")
	return nil
}

func (d *Deployer) firstInClusterLog(ctx context.Context, pattern string) (string, error) {
	script := remote.Quote("sudo", "egrep", pattern, cephadm.ClusterLogPath(d.state.FSID))
	for _, exclude := range d.job.LogIgnorelist {
		script += " | " + remote.Quote("egrep", "-v", exclude)
	}
	script += " | head -n 1"

	out, err := remote.Output(ctx, d.exec, d.state.BootstrapHost, remote.Script(script))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}
