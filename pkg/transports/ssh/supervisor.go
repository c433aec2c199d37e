package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/taskloop/taskloop/pkg/engine"
)

// Supervisor runs tasks on a remote host. It implements engine.Supervisor
// with the same outcome protocol as local execution: exit 0 is OK, exit 2
// is HALT, anything else is RETRY.
//
// Like its local counterpart, the timeout path signals the remote process
// and reports RETRY without waiting for it to die.
type Supervisor struct {
	config *Config
	client *ssh.Client
	log    zerolog.Logger
}

// NewSupervisor creates a remote supervisor. The connection is established
// lazily on first use.
func NewSupervisor(cfg *Config, log zerolog.Logger) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, engine.NewConfigError("invalid ssh configuration", err)
	}
	return &Supervisor{
		config: cfg,
		log:    log.With().Str("component", "ssh-supervisor").Str("host", cfg.Host).Logger(),
	}, nil
}

// Connect dials the remote host.
func (s *Supervisor) Connect() error {
	if s.client != nil {
		return nil
	}

	clientConfig, err := s.config.BuildSSHClientConfig()
	if err != nil {
		return engine.NewConfigError("failed to build ssh client config", err)
	}

	client, err := ssh.Dial("tcp", s.config.Address(), clientConfig)
	if err != nil {
		return engine.NewSpawnError(fmt.Sprintf("failed to connect to %s", s.config.Address()), err)
	}

	s.client = client
	s.log.Debug().Msg("connected")
	return nil
}

// Close tears down the connection.
func (s *Supervisor) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// RunOnce implements engine.Supervisor.
func (s *Supervisor) RunOnce(ctx context.Context, argv []string, env []string, maxTime time.Duration) (engine.Outcome, error) {
	if len(argv) == 0 {
		return "", engine.NewInternalError("empty command", nil)
	}
	if err := s.Connect(); err != nil {
		return "", err
	}

	session, err := s.client.NewSession()
	if err != nil {
		return "", engine.NewSpawnError("failed to create ssh session", err)
	}
	defer session.Close()

	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		// Most sshd installations restrict AcceptEnv; failures here only
		// mean the variable is not forwarded.
		_ = session.Setenv(k, v)
	}

	session.Stdout = os.Stdout
	session.Stderr = os.Stderr

	cmd := quoteCommand(argv)
	s.log.Debug().Str("command", cmd).Msg("running remote command")

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	var deadline <-chan time.Time
	if maxTime > 0 {
		timer := time.NewTimer(maxTime)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case err := <-done:
		return mapExit(err)
	case <-deadline:
		s.log.Warn().Str("command", argv[0]).Dur("max_time", maxTime).
			Msg("exceeded max_time; terminating")
		_ = session.Signal(ssh.SIGTERM)
		return engine.OutcomeRetry, nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		return "", ctx.Err()
	}
}

// mapExit applies the task author protocol to a remote Run result.
func mapExit(err error) (engine.Outcome, error) {
	if err == nil {
		return engine.OutcomeOK, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitStatus() {
		case 0:
			return engine.OutcomeOK, nil
		case 2:
			return engine.OutcomeHalt, nil
		default:
			return engine.OutcomeRetry, nil
		}
	}

	var missingErr *ssh.ExitMissingError
	if errors.As(err, &missingErr) {
		// Killed by signal without an exit status.
		return engine.OutcomeRetry, nil
	}

	return "", engine.NewSpawnError("remote execution failed", err)
}

// quoteCommand joins argv into a shell command, single-quoting every field.
func quoteCommand(argv []string) string {
	quoted := make([]string, len(argv))
	for i, field := range argv {
		quoted[i] = "'" + strings.ReplaceAll(field, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}

// UploadDir copies a local task directory to the remote host over sftp,
// preserving the executable bit. Subdirectories are skipped, matching task
// discovery.
func (s *Supervisor) UploadDir(localDir, remoteDir string) error {
	if err := s.Connect(); err != nil {
		return err
	}

	client, err := sftp.NewClient(s.client)
	if err != nil {
		return engine.NewSpawnError("failed to create sftp client", err)
	}
	defer client.Close()

	if err := client.MkdirAll(remoteDir); err != nil {
		return engine.NewSpawnError(fmt.Sprintf("failed to create remote directory %s", remoteDir), err)
	}

	entries, err := os.ReadDir(localDir)
	if err != nil {
		return engine.NewConfigError(fmt.Sprintf("failed to list %s", localDir), err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := s.uploadFile(client, filepath.Join(localDir, entry.Name()), path.Join(remoteDir, entry.Name())); err != nil {
			return err
		}
	}

	s.log.Debug().Str("local", localDir).Str("remote", remoteDir).Msg("task directory uploaded")
	return nil
}

func (s *Supervisor) uploadFile(client *sftp.Client, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return engine.NewConfigError(fmt.Sprintf("failed to open %s", localPath), err)
	}
	defer src.Close()

	dst, err := client.Create(remotePath)
	if err != nil {
		return engine.NewSpawnError(fmt.Sprintf("failed to create %s", remotePath), err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return engine.NewSpawnError(fmt.Sprintf("failed to upload %s", remotePath), err)
	}

	info, err := src.Stat()
	if err != nil {
		return engine.NewConfigError(fmt.Sprintf("failed to stat %s", localPath), err)
	}
	if err := client.Chmod(remotePath, info.Mode().Perm()); err != nil {
		return engine.NewSpawnError(fmt.Sprintf("failed to chmod %s", remotePath), err)
	}
	return nil
}
