package repository

import (
	"fmt"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/model"
)

var (
	ErrRecordNotFound   = fmt.Errorf("record not found")
	ErrRecordExists     = fmt.Errorf("record is exists already")
	ErrInstanceBusy     = fmt.Errorf("instance has a backup in progress")
	ErrTransActionBegin = fmt.Errorf("transaction already begin")
	ErrTransActionEnd   = fmt.Errorf("transaction already commit or rollback")
)

func EncodeInstancePasswd(instance *model.Instance) {
	instance.Password = common.AesEncryptECB(instance.Password)
	instance.SshPassword = common.AesEncryptECB(instance.SshPassword)
}

func DecodeInstancePasswd(instance *model.Instance) {
	instance.Password = common.AesDecryptECB(instance.Password)
	instance.SshPassword = common.AesDecryptECB(instance.SshPassword)
}

func EncodeTargetPasswd(target *model.StorageTarget) {
	target.Remote.Password = common.AesEncryptECB(target.Remote.Password)
	target.OSS.SecretAccessKey = common.AesEncryptECB(target.OSS.SecretAccessKey)
}

func DecodeTargetPasswd(target *model.StorageTarget) {
	target.Remote.Password = common.AesDecryptECB(target.Remote.Password)
	target.OSS.SecretAccessKey = common.AesDecryptECB(target.OSS.SecretAccessKey)
}
