package controller

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/service/engine"
)

type RestoreController struct {
	Controller
}

func NewRestoreController(wrapfunc Wrapfunc) *RestoreController {
	return &RestoreController{
		Controller: Controller{
			wrapfunc: wrapfunc,
		},
	}
}

// @Summary Restore
// @Description Restore a backup record onto an instance; confirm must be true
// @version 1.0
// @Param req body model.RestoreRequest true "request body"
// @Failure 200 {string} json "{"retCode":"5304","retMsg":"restore needs confirmation","entity":nil}"
// @Failure 200 {string} json "{"retCode":"5306","retMsg":"restore failed","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":{"instance_id":"...","applied":2}}"
// @Router /api/v1/restore [post]
func (controller *RestoreController) Restore(c *gin.Context) {
	var req model.RestoreRequest
	if err := model.DecodeRequestBody(c.Request, &req); err != nil {
		controller.wrapfunc(c, model.E_UNMARSHAL_FAILED, err)
		return
	}
	if req.RecordId == "" || req.InstanceId == "" {
		err := fmt.Errorf("record_id and instance_id must not be empty")
		controller.wrapfunc(c, model.E_INVALID_PARAMS, err)
		return
	}

	resp, err := engine.Restore(req)
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_RESTORE_FAILED), err)
		return
	}
	controller.wrapfunc(c, model.E_SUCCESS, resp)
}

// @Summary RestoreUpload
// @Description Restore an uploaded logical dump onto an instance, bypassing the record store
// @version 1.0
// @Param instanceId formData string true "instance id"
// @Param targetDatabase formData string false "target database"
// @Param confirm formData bool true "must be true"
// @Param file formData file true "dump file (.sql or .sql.gz)"
// @Failure 200 {string} json "{"retCode":"5304","retMsg":"restore needs confirmation","entity":nil}"
// @Success 200 {string} json "{"retCode":"0000","retMsg":"success","entity":{"instance_id":"...","applied":1}}"
// @Router /api/v1/restore/upload [post]
func (controller *RestoreController) RestoreUpload(c *gin.Context) {
	instanceId := c.PostForm("instanceId")
	if instanceId == "" {
		err := fmt.Errorf("expect instanceId but got null")
		controller.wrapfunc(c, model.E_INVALID_PARAMS, err)
		return
	}
	confirm, _ := strconv.ParseBool(c.PostForm("confirm"))

	file, err := c.FormFile("file")
	if err != nil {
		controller.wrapfunc(c, model.E_INVALID_PARAMS, err)
		return
	}
	if err = os.MkdirAll(config.GlobalConfig.Backup.ScratchDir, 0755); err != nil {
		controller.wrapfunc(c, model.E_TRANSFER_FAILED, err)
		return
	}
	local := path.Join(config.GlobalConfig.Backup.ScratchDir, fmt.Sprintf("upload-%d-%s", time.Now().UnixNano(), path.Base(file.Filename)))
	if err = c.SaveUploadedFile(file, local); err != nil {
		controller.wrapfunc(c, model.E_TRANSFER_FAILED, err)
		return
	}
	defer os.Remove(local)

	resp, err := engine.Restore(model.RestoreRequest{
		InstanceId:     instanceId,
		TargetDatabase: c.PostForm("targetDatabase"),
		Confirm:        confirm,
		UploadPath:     local,
	})
	if err != nil {
		controller.wrapfunc(c, retCodeForEngine(err, model.E_RESTORE_FAILED), err)
		return
	}
	controller.wrapfunc(c, model.E_SUCCESS, resp)
}
