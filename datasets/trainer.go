package datasets

import (
	"context"
	"os"
	"os/exec"

	"github.com/cyclopcam/logs"
	"github.com/pkg/errors"
)

// Trainer produces the backbone weights file of a sequence. It blocks until
// training finished; the only observable result is the weights file.
type Trainer interface {
	TrainOnline(ctx context.Context, sequence string) error
}

// TrainerFunc adapts a function to Trainer.
type TrainerFunc func(ctx context.Context, sequence string) error

// TrainOnline calls f.
func (f TrainerFunc) TrainOnline(ctx context.Context, sequence string) error {
	return f(ctx, sequence)
}

// DefaultTrainerEnv is the environment variable carrying the sequence name.
const DefaultTrainerEnv = "SEQ_NAME"

// CommandTrainer runs an external online-training program with the sequence
// name in an environment variable.
type CommandTrainer struct {
	Log     logs.Log
	Command []string
	EnvVar  string
	Dir     string
}

// TrainOnline runs the command and waits for it.
func (c *CommandTrainer) TrainOnline(ctx context.Context, sequence string) error {
	if len(c.Command) == 0 {
		return errors.New("online training command not configured")
	}
	env := c.EnvVar
	if env == "" {
		env = DefaultTrainerEnv
	}
	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	cmd.Env = append(os.Environ(), env+"="+sequence)
	cmd.Dir = c.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	c.Log.Infof("Online training %v: %v", sequence, c.Command)
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "online training of %s", sequence)
	}
	return nil
}
