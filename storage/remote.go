package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/bramvdbogaerde/go-scp"
	"github.com/pkg/errors"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/remote"
)

// sshTarget stores artifacts on a host reached over ssh. It backs both
// the mysql_host kind (the database host itself, instance credentials)
// and the remote_server kind (a dedicated backup server, its own
// credentials).
type sshTarget struct {
	kind     string
	creds    remote.Credentials
	basePath string
}

func NewHostTarget(instance *model.Instance, basePath string) Target {
	return &sshTarget{
		kind:     model.StorageMySQLHost,
		creds:    remote.CredentialsFromInstance(instance),
		basePath: basePath,
	}
}

func NewRemoteTarget(target model.TargetRemote) Target {
	return &sshTarget{
		kind:     model.StorageRemoteServer,
		creds:    remote.CredentialsFromTarget(target),
		basePath: target.Path,
	}
}

func (t *sshTarget) Kind() string {
	return t.kind
}

func (t *sshTarget) dial() (*remote.SshExecutor, error) {
	e, err := remote.NewSshExecutor(t.creds)
	if err != nil {
		return nil, err
	}
	return e.(*remote.SshExecutor), nil
}

func transferTimeout() time.Duration {
	return time.Duration(common.GetIntwithDefault(config.GlobalConfig.Backup.TransferTimeout, 3600)) * time.Second
}

func (t *sshTarget) Write(localPath, name string) (model.BackupLocation, error) {
	e, err := t.dial()
	if err != nil {
		return model.BackupLocation{}, err
	}
	defer e.Close()

	dst := path.Join(t.basePath, name)
	if _, err = e.Run(fmt.Sprintf("mkdir -p %s", path.Dir(dst)), 0); err != nil {
		return model.BackupLocation{}, err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return model.BackupLocation{}, errors.Wrap(err, "")
	}
	defer f.Close()

	client, err := scp.NewClientBySSH(e.Client())
	if err != nil {
		return model.BackupLocation{}, errors.Wrap(err, "")
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), transferTimeout())
	defer cancel()
	if err = client.CopyFromFile(ctx, *f, dst, "0644"); err != nil {
		return model.BackupLocation{}, errors.Wrapf(err, "scp %s to %s:%s", localPath, t.creds.Host, dst)
	}
	return model.BackupLocation{Kind: t.kind, Path: dst}, nil
}

func (t *sshTarget) Read(location model.BackupLocation, localPath string) error {
	e, err := t.dial()
	if err != nil {
		return err
	}
	defer e.Close()
	return e.Download(location.Path, localPath)
}

func (t *sshTarget) Remove(location model.BackupLocation) error {
	e, err := t.dial()
	if err != nil {
		return err
	}
	defer e.Close()
	_, err = e.Run(fmt.Sprintf("rm -f %s", location.Path), 0)
	return err
}

func (t *sshTarget) TestConnectivity() error {
	e, err := t.dial()
	if err != nil {
		return err
	}
	defer e.Close()
	probe := path.Join(t.basePath, fmt.Sprintf(".probe.%d", time.Now().UnixNano()))
	cmd := fmt.Sprintf("mkdir -p %s && touch %s && rm -f %s", t.basePath, probe, probe)
	_, err = e.Run(cmd, 30*time.Second)
	return err
}
