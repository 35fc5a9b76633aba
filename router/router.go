package router

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dbguardian/dbguardian/controller"
	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/model"
)

type ResponseBody struct {
	RetCode string      `json:"retCode"`
	RetMsg  string      `json:"retMsg"`
	Entity  interface{} `json:"entity"`
}

func WrapMsg(c *gin.Context, retCode string, entity interface{}) {
	c.Status(http.StatusOK)
	c.Header("Content-Type", "application/json; charset=utf-8")

	retMsg := model.GetMsg(c, retCode)
	if retCode != model.E_SUCCESS {
		log.Logger.Errorf("%s %s return %s, %v", c.Request.Method, c.Request.RequestURI, retCode, entity)
		if err, ok := entity.(error); ok {
			retMsg += ": " + err.Error()
		} else if s, ok := entity.(string); ok {
			retMsg += ": " + s
		}
		entity = nil
	}

	resp := ResponseBody{
		RetCode: retCode,
		RetMsg:  retMsg,
		Entity:  entity,
	}
	jsonBytes, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		log.Logger.Errorf("%s %s marshal response body fail: %s", c.Request.Method, c.Request.RequestURI, err.Error())
		return
	}

	log.Logger.Debugf("[response] | %s | %s | %s \n%v", c.Request.Host, c.Request.Method, c.Request.URL, string(jsonBytes))

	_, err = c.Writer.Write(jsonBytes)
	if err != nil {
		log.Logger.Errorf("%s %s write response body fail: %s", c.Request.Method, c.Request.RequestURI, err.Error())
		return
	}
}

func InitRouterV1(groupV1 *gin.RouterGroup) {
	instanceController := controller.NewInstanceController(WrapMsg)
	backupController := controller.NewBackupController(WrapMsg)
	restoreController := controller.NewRestoreController(WrapMsg)
	strategyController := controller.NewStrategyController(WrapMsg)
	taskController := controller.NewTaskController(WrapMsg)

	groupV1.POST("/instance", instanceController.CreateInstance)
	groupV1.GET("/instance", instanceController.GetAllInstances)
	groupV1.GET("/instance/:instanceId", instanceController.GetInstance)
	groupV1.PUT("/instance/:instanceId", instanceController.UpdateInstance)
	groupV1.DELETE("/instance/:instanceId", instanceController.DeleteInstance)
	groupV1.GET("/instance/:instanceId/ping", instanceController.PingInstance)
	groupV1.GET("/instance/:instanceId/databases", instanceController.ListDatabases)

	groupV1.POST("/backup", backupController.TriggerBackup)
	groupV1.GET("/backup/record/:recordId", backupController.GetRecord)
	groupV1.DELETE("/backup/record/:recordId", backupController.DeleteRecord)
	groupV1.PUT("/backup/record/:recordId/cancel", backupController.CancelBackup)
	groupV1.GET("/backup/record/:recordId/chain", backupController.GetChain)
	groupV1.POST("/backup/record/:recordId/verify", backupController.VerifyRecord)
	groupV1.GET("/backup/record/:recordId/download", backupController.DownloadArtifact)
	groupV1.GET("/backup/records/:instanceId", backupController.GetRecordsByInstance)
	groupV1.POST("/backup/storage/test", backupController.TestStorage)

	groupV1.POST("/restore", restoreController.Restore)
	groupV1.POST("/restore/upload", restoreController.RestoreUpload)

	groupV1.POST("/strategy", strategyController.CreateStrategy)
	groupV1.GET("/strategy", strategyController.GetAllStrategies)
	groupV1.GET("/strategy/:strategyId", strategyController.GetStrategy)
	groupV1.PUT("/strategy/:strategyId", strategyController.UpdateStrategy)
	groupV1.DELETE("/strategy/:strategyId", strategyController.DeleteStrategy)
	groupV1.PUT("/strategy/:strategyId/enable", strategyController.EnableStrategy)

	groupV1.POST("/task", taskController.CreateTask)
	groupV1.GET("/task", taskController.TasksList)
	groupV1.GET("/task/:taskId", taskController.GetTask)
	groupV1.DELETE("/task/:taskId", taskController.DeleteTask)
	groupV1.PUT("/task/:taskId/cancel", taskController.CancelTask)
}
