package controller

import (
	"os"
	"path"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/repository"
	"github.com/dbguardian/dbguardian/service/engine"
)

const (
	RecordIdPath = "recordId"
)

type BackupController struct {
	Controller
}

func NewBackupController(wrapfunc Wrapfunc) *BackupController {
	return &BackupController{
		Controller: Controller{
			wrapfunc: wrapfunc,
		},
	}
}

// @Summary TriggerBackup
// @Description Start a backup; returns the record id once the instance is claimed
// @version 1.0
// @Param req body model.BackupRequest true "request body"
// @Failure 200 {string} json "{"retCode":"5300","retMsg":"no base backup available","entity":nil}"
// @Failure 200 {string} json "{"retCode":"5303","retMsg":"backup already in progress","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":"3f9c7c8a-4f01-11ee-9d3f-0242ac110002"}"
// @Router /api/v1/backup [post]
func (controller *BackupController) TriggerBackup(c *gin.Context) {
	var req model.BackupRequest
	if err := model.DecodeRequestBody(c.Request, &req); err != nil {
		controller.wrapfunc(c, model.E_UNMARSHAL_FAILED, err)
		return
	}

	record, err := engine.Claim(&req)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_BACKUP_FAILED), err)
		return
	}
	// the claim holds the instance; the job itself runs detached
	go func() {
		if err := engine.RunBackup(record, req); err != nil {
			log.Logger.Errorf("backup %s failed: %v", record.RecordId, err)
		}
	}()

	controller.wrapfunc(c, model.E_SUCCESS, record.RecordId)
}

// @Summary GetRecord
// @Description Get one backup record
// @version 1.0
// @Param recordId path string true "record id"
// @Failure 200 {string} json "{"retCode":"5100","retMsg":"record not found","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":{}}"
// @Router /api/v1/backup/record/{recordId} [get]
func (controller *BackupController) GetRecord(c *gin.Context) {
	recordId := c.Param(RecordIdPath)
	record, err := repository.Ps.GetRecordById(recordId)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}
	controller.wrapfunc(c, model.E_SUCCESS, recordResp(record))
}

// @Summary GetRecordsByInstance
// @Description List backup records of an instance, newest first
// @version 1.0
// @Param instanceId path string true "instance id"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":[]}"
// @Router /api/v1/backup/records/{instanceId} [get]
func (controller *BackupController) GetRecordsByInstance(c *gin.Context) {
	instanceId := c.Param(InstanceIdPath)
	records, err := repository.Ps.GetRecordsByInstance(instanceId)
	if err != nil {
		controller.wrapfunc(c, model.E_DATA_SELECT_FAILED, err)
		return
	}
	resps := make([]model.RecordResp, 0, len(records))
	for _, record := range records {
		resps = append(resps, recordResp(record))
	}
	controller.wrapfunc(c, model.E_SUCCESS, resps)
}

// @Summary DeleteRecord
// @Description Delete a record and its artifact; refused while incrementals depend on it
// @version 1.0
// @Param recordId path string true "record id"
// @Failure 200 {string} json "{"retCode":"5302","retMsg":"younger backups depend on this record","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":nil}"
// @Router /api/v1/backup/record/{recordId} [delete]
func (controller *BackupController) DeleteRecord(c *gin.Context) {
	recordId := c.Param(RecordIdPath)
	if err := engine.DeleteRecord(recordId); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_DELETE_FAILED), err)
		return
	}
	controller.wrapfunc(c, model.E_SUCCESS, nil)
}

// @Summary CancelBackup
// @Description Mark a running backup as cancelled; the job discards its artifact when it notices
// @version 1.0
// @Param recordId path string true "record id"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":nil}"
// @Router /api/v1/backup/record/{recordId}/cancel [put]
func (controller *BackupController) CancelBackup(c *gin.Context) {
	recordId := c.Param(RecordIdPath)
	if err := engine.Cancel(recordId); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_UPDATE_FAILED), err)
		return
	}
	controller.wrapfunc(c, model.E_SUCCESS, nil)
}

// @Summary GetChain
// @Description Resolve the backup chain of a record, base first
// @version 1.0
// @Param recordId path string true "record id"
// @Failure 200 {string} json "{"retCode":"5301","retMsg":"backup chain is broken","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":{}}"
// @Router /api/v1/backup/record/{recordId}/chain [get]
func (controller *BackupController) GetChain(c *gin.Context) {
	recordId := c.Param(RecordIdPath)
	chain, err := engine.ResolveChain(recordId)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_DATA_SELECT_FAILED), err)
		return
	}
	for i := range chain {
		maskRecord(&chain[i])
	}
	controller.wrapfunc(c, model.E_SUCCESS, model.ChainResp{RecordId: recordId, Records: chain})
}

// @Summary VerifyRecord
// @Description Verify the stored artifact of a record without touching the instance
// @version 1.0
// @Param recordId path string true "record id"
// @Failure 200 {string} json "{"retCode":"5307","retMsg":"verify failed","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":{"ok":true,"message":"ok"}}"
// @Router /api/v1/backup/record/{recordId}/verify [post]
func (controller *BackupController) VerifyRecord(c *gin.Context) {
	recordId := c.Param(RecordIdPath)
	resp, err := engine.Verify(recordId)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_VERIFY_FAILED), err)
		return
	}
	controller.wrapfunc(c, model.E_SUCCESS, resp)
}

// @Summary DownloadArtifact
// @Description Download the artifact of a successful record
// @version 1.0
// @Param recordId path string true "record id"
// @Router /api/v1/backup/record/{recordId}/download [get]
func (controller *BackupController) DownloadArtifact(c *gin.Context) {
	recordId := c.Param(RecordIdPath)
	local, err := engine.FetchArtifact(recordId)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_TRANSFER_FAILED), err)
		return
	}
	defer os.Remove(local)
	c.FileAttachment(local, path.Base(local))
}

// @Summary TestStorage
// @Description Probe a storage target's connectivity
// @version 1.0
// @Param req body model.TestStorageReq true "request body"
// @Failure 200 {string} json "{"retCode":"5308","retMsg":"storage target failed","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":{"ok":true,"message":"ok"}}"
// @Router /api/v1/backup/storage/test [post]
func (controller *BackupController) TestStorage(c *gin.Context) {
	var req model.TestStorageReq
	if err := model.DecodeRequestBody(c.Request, &req); err != nil {
		controller.wrapfunc(c, model.E_UNMARSHAL_FAILED, err)
		return
	}
	if err := engine.TestStorage(req.Storage, req.InstanceId); err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_STORAGE_FAILED), err)
		return
	}
	controller.wrapfunc(c, model.E_SUCCESS, model.ConnectivityResp{OK: true, Message: "ok"})
}

func recordResp(record model.BackupRecord) model.RecordResp {
	maskRecord(&record)
	end := time.Now()
	if record.EndTime != nil {
		end = *record.EndTime
	}
	duration := ""
	if !record.StartTime.IsZero() {
		duration = common.ConvertDuration(record.StartTime, end)
	}
	return model.RecordResp{BackupRecord: record, Duration: duration}
}

// storage credentials never leave through the API
func maskRecord(record *model.BackupRecord) {
	if record.Storage.Remote.Password != "" {
		record.Storage.Remote.Password = "******"
	}
	if record.Storage.OSS.SecretAccessKey != "" {
		record.Storage.OSS.SecretAccessKey = "******"
	}
}
