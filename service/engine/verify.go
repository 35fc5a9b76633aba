package engine

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/repository"
)

// Verify checks a stored artifact without touching the live instance:
// it must be reachable, sized as recorded, checksum-identical and
// structurally what its type declares. The outcome lands on the record.
func Verify(recordId string) (model.VerifyResp, error) {
	record, err := repository.Ps.GetRecordById(recordId)
	if err != nil {
		return model.VerifyResp{}, err
	}

	ok, message := verifyArtifact(record)
	now := time.Now()
	record.LastVerifyTime = &now
	record.LastVerifyOK = ok
	record.LastVerifyMsg = message
	record.UpdateTime = now
	if err = repository.Ps.UpdateRecord(record); err != nil {
		return model.VerifyResp{}, err
	}
	return model.VerifyResp{RecordId: recordId, OK: ok, Message: message}, nil
}

func verifyArtifact(record model.BackupRecord) (bool, string) {
	if record.Status != model.BackupStatusSuccess {
		return false, fmt.Sprintf("record is %s, nothing to verify", record.Status)
	}
	target, err := targetForRecord(record)
	if err != nil {
		return false, err.Error()
	}

	if err = os.MkdirAll(config.GlobalConfig.Backup.ScratchDir, 0755); err != nil {
		return false, err.Error()
	}
	local := path.Join(config.GlobalConfig.Backup.ScratchDir, fmt.Sprintf("verify-%s", record.RecordId))
	defer os.Remove(local)

	if err = target.Read(record.Location, local); err != nil {
		return false, fmt.Sprintf("artifact unreachable: %v", err)
	}

	info, err := os.Stat(local)
	if err != nil {
		return false, err.Error()
	}
	if record.SizeBytes > 0 && info.Size() != record.SizeBytes {
		return false, fmt.Sprintf("size mismatch: stored %d, recorded %d", info.Size(), record.SizeBytes)
	}

	if record.Checksum != "" {
		sum, err := common.Sha256File(local)
		if err != nil {
			return false, err.Error()
		}
		if sum != record.Checksum {
			return false, "checksum mismatch"
		}
	}

	return structuralCheck(record, local)
}

// structuralCheck confirms the artifact looks like what the record
// declares it to be, not just a blob with the right checksum: logical
// dumps must open with the mysqldump header, physical archives must
// carry xtrabackup_checkpoints, cold tarballs must not be empty.
func structuralCheck(record model.BackupRecord, local string) (bool, string) {
	switch record.BackupType {
	case model.BackupTypeFull:
		if record.Compress {
			if err := gzipReadable(local); err != nil {
				return false, fmt.Sprintf("gzip unreadable: %v", err)
			}
		}
		header, err := readDumpHeader(local, record.Compress)
		if err != nil {
			return false, err.Error()
		}
		if !strings.HasPrefix(header, "-- MySQL dump") {
			return false, "artifact does not start with a mysqldump header"
		}
	case model.BackupTypeHot, model.BackupTypeIncremental:
		entries, found, err := tarScan(local, "xtrabackup_checkpoints")
		if err != nil {
			return false, fmt.Sprintf("archive unreadable: %v", err)
		}
		if entries == 0 || !found {
			return false, "archive carries no xtrabackup_checkpoints"
		}
	case model.BackupTypeCold:
		entries, _, err := tarScan(local, "")
		if err != nil {
			return false, fmt.Sprintf("archive unreadable: %v", err)
		}
		if entries == 0 {
			return false, "archive is empty"
		}
	}
	return true, "ok"
}

func gzipReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer gr.Close()
	_, err = io.Copy(io.Discard, gr)
	return errors.Wrap(err, "")
}

func readDumpHeader(path string, compressed bool) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "")
	}
	defer f.Close()
	var r io.Reader = f
	if compressed {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return "", errors.Wrap(err, "")
		}
		defer gr.Close()
		r = gr
	}
	buf := make([]byte, 64)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", errors.Wrap(err, "")
	}
	return string(buf[:n]), nil
}

// tarScan walks a gzipped tar end to end, counting entries and looking
// for one whose base name matches want. Walking the whole archive also
// catches truncation the checksum cannot.
func tarScan(path, want string) (int, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false, errors.Wrap(err, "")
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		return 0, false, errors.Wrap(err, "")
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	entries := 0
	found := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return entries, found, errors.Wrap(err, "")
		}
		entries++
		if want != "" && filepath.Base(hdr.Name) == want {
			found = true
		}
	}
	return entries, found, nil
}
