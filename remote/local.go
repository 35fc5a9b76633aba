package remote

import (
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/pkg/errors"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/log"
)

// LocalExecutor runs commands on the orchestrator host itself. Used
// when an instance has no ssh endpoint configured, which means the
// database runs next to the engine.
type LocalExecutor struct{}

func NewLocalExecutor() Executor {
	return &LocalExecutor{}
}

func (e *LocalExecutor) Run(cmd string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = time.Duration(common.GetIntwithDefault(config.GlobalConfig.Backup.CommandTimeout, 3600)) * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Logger.Debugf("[local] run: %s", cmd)
	output, err := exec.CommandContext(ctx, "/bin/sh", "-c", cmd).CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(output), errors.Errorf("run '%s' timeout after %v", cmd, timeout)
	}
	if err != nil {
		return string(output), errors.Wrapf(err, "run '%s' fail: %s", cmd, string(output))
	}
	return string(output), nil
}

func (e *LocalExecutor) Upload(localPath, remotePath string) error {
	return copyFile(localPath, remotePath)
}

func (e *LocalExecutor) Download(remotePath, localPath string) error {
	return copyFile(remotePath, localPath)
}

func (e *LocalExecutor) Close() {}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer out.Close()
	if _, err = io.Copy(out, in); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// DialInstance picks the transport for an instance: ssh when an
// endpoint is configured, the local host otherwise.
func DialInstance(creds Credentials) (Executor, error) {
	if creds.Host == "" {
		return NewLocalExecutor(), nil
	}
	return NewSshExecutor(creds)
}
