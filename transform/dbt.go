package transform

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os/exec"

	"github.com/pkg/errors"
	"github.com/relloyd/taxipipe/constants"
	"github.com/relloyd/taxipipe/dag"
	"github.com/relloyd/taxipipe/logger"
	"github.com/relloyd/taxipipe/pipeerr"
)

type DbtConfig struct {
	Executable  string   `yaml:"executable" json:"executable"`
	Command     string   `yaml:"command" json:"command"` // dbt sub-command, e.g. build or run.
	ProjectDir  string   `yaml:"projectDir" json:"projectDir"`
	ProfilesDir string   `yaml:"profilesDir" json:"profilesDir"`
	Target      string   `yaml:"target" json:"target"`
	ExtraArgs   []string `yaml:"extraArgs" json:"extraArgs"`
}

type DbtRunner struct {
	log logger.Logger
	cfg DbtConfig
}

func NewDbtRunner(log logger.Logger, cfg DbtConfig) (*DbtRunner, error) {
	if cfg.Executable == "" {
		cfg.Executable = "dbt"
	}
	if cfg.Command == "" {
		cfg.Command = "build"
	}
	return &DbtRunner{log: log, cfg: cfg}, nil
}

func (r *DbtRunner) Name() string { return constants.TransformTypeDbt }

// Args returns the command line passed to the dbt executable for run.
func (r *DbtRunner) Args(run dag.RunContext) ([]string, error) {
	vars, err := json.Marshal(map[string]string{
		"run_id":       run.RunID,
		"logical_date": run.LogicalDate.Format(constants.TimeFormatLogicalDate),
		"period":       run.Period.String(),
	})
	if err != nil {
		return nil, err
	}
	args := []string{r.cfg.Command}
	if r.cfg.ProjectDir != "" {
		args = append(args, "--project-dir", r.cfg.ProjectDir)
	}
	if r.cfg.ProfilesDir != "" {
		args = append(args, "--profiles-dir", r.cfg.ProfilesDir)
	}
	if r.cfg.Target != "" {
		args = append(args, "--target", r.cfg.Target)
	}
	args = append(args, "--vars", string(vars))
	return append(args, r.cfg.ExtraArgs...), nil
}

// Run executes dbt and logs its output line by line.
// A non-zero exit status is returned as a TransformError.
func (r *DbtRunner) Run(ctx context.Context, run dag.RunContext) error {
	args, err := r.Args(run)
	if err != nil {
		return &pipeerr.TransformError{Runner: r.Name(), Err: err}
	}
	cmd := exec.CommandContext(ctx, r.cfg.Executable, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	r.log.Info("running ", r.cfg.Executable, " ", r.cfg.Command, " for run ", run.RunID)
	err = cmd.Run()
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		r.log.Info("dbt: ", scanner.Text())
	}
	if err != nil {
		return &pipeerr.TransformError{Runner: r.Name(), Err: errors.Wrapf(err, "%v %v", r.cfg.Executable, r.cfg.Command)}
	}
	return nil
}
