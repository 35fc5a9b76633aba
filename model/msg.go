package model

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	E_SUCCESS string = "0000"
	E_UNKNOWN string = "0001"

	E_INVALID_PARAMS   string = "5000"
	E_INVALID_VARIABLE string = "5001"
	E_DATA_MISMATCHED  string = "5002"
	E_DATA_NOT_EXIST   string = "5003"
	E_DATA_DUPLICATED  string = "5004"
	E_DATA_EMPTY       string = "5005"

	E_RECORD_NOT_FOUND   string = "5100"
	E_DATA_INSERT_FAILED string = "5101"
	E_DATA_UPDATE_FAILED string = "5102"
	E_DATA_DELETE_FAILED string = "5103"
	E_DATA_SELECT_FAILED string = "5104"

	E_SSH_CONNECT_FAILED   string = "5200"
	E_SSH_EXECUTE_FAILED   string = "5201"
	E_TRANSFER_FAILED      string = "5202"
	E_MYSQL_CONNECT_FAILED string = "5203"

	E_NO_BASE_AVAILABLE  string = "5300"
	E_BROKEN_CHAIN       string = "5301"
	E_CHAIN_DEPENDENCY   string = "5302"
	E_BACKUP_IN_PROGRESS string = "5303"
	E_CONFIRM_REQUIRED   string = "5304"
	E_BACKUP_FAILED      string = "5305"
	E_RESTORE_FAILED     string = "5306"
	E_VERIFY_FAILED      string = "5307"
	E_STORAGE_FAILED     string = "5308"

	E_MARSHAL_FAILED   string = "5400"
	E_UNMARSHAL_FAILED string = "5401"
)

type CodeMessage struct {
	Msg_EN string
	Msg_ZH string
}

var Messages = map[string]CodeMessage{
	E_SUCCESS: {"E_SUCCESS", "成功"},
	E_UNKNOWN: {"E_UNKNOWN", "未知错误"},

	E_INVALID_PARAMS:   {"E_INVALID_PARAMS", "参数不合法"},
	E_INVALID_VARIABLE: {"E_INVALID_VARIABLE", "变量不合法"},
	E_DATA_MISMATCHED:  {"E_DATA_MISMATCHED", "数据不匹配"},
	E_DATA_NOT_EXIST:   {"E_DATA_NOT_EXIST", "数据不存在"},
	E_DATA_DUPLICATED:  {"E_DATA_DPULICATED", "数据重复"},
	E_DATA_EMPTY:       {"E_DATA_EMPTY", "数据不允许为空"},

	E_RECORD_NOT_FOUND:   {"E_RECORD_NOT_FOUND", "记录找不到"},
	E_DATA_INSERT_FAILED: {"E_DATA_INSERT_FAILED", "数据插入失败"},
	E_DATA_UPDATE_FAILED: {"E_DATA_UPDATE_FAILED", "数据更新失败"},
	E_DATA_DELETE_FAILED: {"E_DATA_DELETE_FAILED", "数据删除失败"},
	E_DATA_SELECT_FAILED: {"E_DATA_SELECT_FAILED", "数据查询失败"},

	E_SSH_CONNECT_FAILED:   {"E_SSH_CONNECT_FAILED", "SSH连接失败"},
	E_SSH_EXECUTE_FAILED:   {"E_SSH_EXECUTE_FAILED", "SSH执行远程命令失败"},
	E_TRANSFER_FAILED:      {"E_TRANSFER_FAILED", "文件传输失败"},
	E_MYSQL_CONNECT_FAILED: {"E_MYSQL_CONNECT_FAILED", "MySQL连接失败"},

	E_NO_BASE_AVAILABLE:  {"E_NO_BASE_AVAILABLE", "没有可用的基准备份"},
	E_BROKEN_CHAIN:       {"E_BROKEN_CHAIN", "备份链不完整"},
	E_CHAIN_DEPENDENCY:   {"E_CHAIN_DEPENDENCY", "存在依赖该备份的增量备份"},
	E_BACKUP_IN_PROGRESS: {"E_BACKUP_IN_PROGRESS", "该实例已有备份任务在执行"},
	E_CONFIRM_REQUIRED:   {"E_CONFIRM_REQUIRED", "恢复操作需要确认"},
	E_BACKUP_FAILED:      {"E_BACKUP_FAILED", "备份失败"},
	E_RESTORE_FAILED:     {"E_RESTORE_FAILED", "恢复失败"},
	E_VERIFY_FAILED:      {"E_VERIFY_FAILED", "备份校验失败"},
	E_STORAGE_FAILED:     {"E_STORAGE_FAILED", "存储目标操作失败"},

	E_MARSHAL_FAILED:   {"E_MARSHAL_FAILED", "序列化失败"},
	E_UNMARSHAL_FAILED: {"E_UNMARSHAL_FAILED", "反序列化失败"},
}

func GetMsg(c *gin.Context, code string) string {
	lang := c.Request.Header.Get("Accept-Language")
	var msg string
	if strings.Contains(lang, "zh") {
		msg = Messages[code].Msg_ZH
	} else {
		msg = Messages[code].Msg_EN
	}
	return msg
}
