package channels

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"hfbot/core/notify"
)

type SignalConfig struct {
	Binary string `yaml:"binary,omitempty"`
	Sender string `yaml:"sender"`
}

// Signal sends private messages through signal-cli.
type Signal struct {
	Binary string
	Sender string
}

func NewSignal(config SignalConfig) *Signal {
	binary := config.Binary
	if binary == "" {
		binary = "signal-cli"
	}

	return &Signal{Binary: binary, Sender: config.Sender}
}

func (s *Signal) Name() string { return "signal" }

func (s *Signal) Dispatch(ctx context.Context, message *notify.Message) (string, error) {
	if message.Recipient == "" {
		return "", errors.New("signal: no recipient")
	}

	stderr := new(bytes.Buffer)
	cmd := exec.CommandContext(ctx, s.Binary,
		"-a", s.Sender, "--trust-new-identities=always",
		"send", "-m", message.Text, message.Recipient)
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "signal-cli: %s", strings.TrimSpace(stderr.String()))
	}

	return "", nil
}

func (s *Signal) Verify(ctx context.Context) error {
	if s.Sender == "" {
		return errors.New("sender is not configured")
	}

	if _, err := exec.LookPath(s.Binary); err != nil {
		return errors.Wrapf(err, "find %s", s.Binary)
	}

	return nil
}
