package storage

import (
	"os"
	"path"

	"github.com/pkg/errors"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/model"
)

// LocalTarget keeps artifacts on the orchestrator's own filesystem,
// under the configured storage root unless the request overrides it.
type LocalTarget struct {
	root string
}

func NewLocalTarget(root string) *LocalTarget {
	return &LocalTarget{
		root: common.GetStringwithDefault(root, config.GlobalConfig.Backup.StorageRoot),
	}
}

func (t *LocalTarget) Kind() string {
	return model.StorageDefault
}

func (t *LocalTarget) Write(localPath, name string) (model.BackupLocation, error) {
	dst := path.Join(t.root, name)
	if err := os.MkdirAll(path.Dir(dst), 0755); err != nil {
		return model.BackupLocation{}, errors.Wrap(err, "")
	}
	// rename first, fall back to copy across filesystems
	if err := os.Rename(localPath, dst); err != nil {
		if err = copyLocal(localPath, dst); err != nil {
			return model.BackupLocation{}, err
		}
		_ = os.Remove(localPath)
	}
	return model.BackupLocation{Kind: model.StorageDefault, Path: dst}, nil
}

func (t *LocalTarget) Read(location model.BackupLocation, localPath string) error {
	return copyLocal(location.Path, localPath)
}

func (t *LocalTarget) Remove(location model.BackupLocation) error {
	if err := os.Remove(location.Path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "")
	}
	return nil
}

func (t *LocalTarget) TestConnectivity() error {
	if err := os.MkdirAll(t.root, 0755); err != nil {
		return errors.Wrap(err, "")
	}
	probe, err := os.CreateTemp(t.root, ".probe")
	if err != nil {
		return errors.Wrap(err, "")
	}
	probe.Close()
	return os.Remove(probe.Name())
}

func copyLocal(src, dst string) error {
	data, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer data.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer out.Close()
	if _, err = out.ReadFrom(data); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
