package runner

import (
	"runtime/debug"
	"time"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/model"
	"github.com/dbguardian/dbguardian/repository"
	"github.com/dbguardian/dbguardian/service/engine"
)

// RunnerService polls due one-off tasks and executes them on a worker
// pool. Per-instance exclusion lives in the engine claim, so two due
// tasks for the same instance cannot both run.
type RunnerService struct {
	Pool     *common.WorkerPool
	Interval int
	Done     chan struct{}
}

func NewRunnerService(serverConfig config.ServerConfig, backupConfig config.BackupConfig) *RunnerService {
	workers := common.GetIntwithDefault(backupConfig.MaxWorkers, 8)
	return &RunnerService{
		Interval: common.GetIntwithDefault(serverConfig.TaskInterval, 5),
		Pool:     common.NewWorkerPool(workers, 2*workers),
		Done:     make(chan struct{}),
	}
}

func (runner *RunnerService) Start() {
	log.Logger.Infof("runner service starting...")
	go runner.Run()
}

func (runner *RunnerService) Run() {
	ticker := time.NewTicker(time.Second * time.Duration(runner.Interval))
	defer ticker.Stop()
	for {
		select {
		case <-runner.Done:
			return
		case <-ticker.C:
			go runner.CheckTaskEvent()
		}
	}
}

func (runner *RunnerService) CheckTaskEvent() {
	tasks, err := repository.Ps.GetAllTasks()
	if err != nil {
		return
	}
	now := time.Now()
	for _, task := range tasks {
		if task.Status != model.TaskStatusPending || task.RunAt.After(now) {
			continue
		}
		// claim before submit: a task queued behind a full pool is still
		// pending on the next tick and would be submitted twice
		if err := setTaskStatus(&task, model.TaskStatusRunning, ""); err != nil {
			log.Logger.Errorf("task %s claim failed: %v", task.TaskId, err)
			continue
		}
		task := task
		if err := runner.Pool.Submit(func() {
			if err := runner.ProcessTask(task); err != nil {
				log.Logger.Errorf("task %s failed: %v", task.TaskId, err)
			}
		}); err != nil {
			_ = setTaskStatus(&task, model.TaskStatusPending, "")
		}
	}
	runner.Pool.Wait()
}

func (runner *RunnerService) ProcessTask(task model.OneOffTask) error {
	log.Logger.Infof("task %s (%s backup of %s) is triggered", task.TaskId, task.BackupType, task.InstanceId)
	defer func() {
		if err := recover(); err != nil {
			_ = setTaskStatus(&task, model.TaskStatusFailed, "panic")
			log.Logger.Errorf("panic: %v", string(debug.Stack()))
		}
	}()

	recordId, err := engine.Execute(model.BackupRequest{
		InstanceId: task.InstanceId,
		BackupType: task.BackupType,
		Storage:    task.Storage,
		Databases:  task.Databases,
		Compress:   task.Compress,
		TaskId:     task.TaskId,
	})
	task.RecordId = recordId
	if err != nil {
		_ = setTaskStatus(&task, model.TaskStatusFailed, err.Error())
		return err
	}
	return setTaskStatus(&task, model.TaskStatusSuccess, "")
}

func setTaskStatus(task *model.OneOffTask, status, message string) error {
	task.Status = status
	task.Message = message
	task.UpdateTime = time.Now()
	return repository.Ps.UpdateTask(*task)
}

func (runner *RunnerService) Stop() {
	runner.Pool.Close()
	if checkDone() {
		log.Logger.Infof("all tasks are finished, exit gracefully")
		runner.Shutdown()
		return
	}

	//if tasks are still running, hold on, then force shutdown
	log.Logger.Infof("still have tasks running, will exit after 60s at the latest")
	ticker := time.NewTicker(time.Second * time.Duration(10))
	timeout := time.NewTicker(time.Minute * time.Duration(1))
	defer ticker.Stop()
	defer timeout.Stop()
	for {
		select {
		case <-ticker.C: //check every 10s
			if checkDone() {
				log.Logger.Infof("all tasks are finished, exit gracefully")
				runner.Shutdown()
				return
			}
		case <-timeout.C:
			log.Logger.Warnf("time out waiting for running tasks, force exit.")
			tasks, _ := repository.Ps.GetAllTasks()
			for _, task := range tasks {
				if task.Status == model.TaskStatusRunning {
					task.Status = model.TaskStatusCanceled
					_ = repository.Ps.UpdateTask(task)
				}
			}
			runner.Shutdown()
			return
		}
	}
}

func (runner *RunnerService) Shutdown() {
	var done struct{}
	runner.Done <- done
}

func checkDone() bool {
	done := true
	tasks, err := repository.Ps.GetAllTasks()
	if err != nil {
		return done
	}
	for _, task := range tasks {
		if task.Status == model.TaskStatusRunning {
			done = false
			break
		}
	}
	return done
}
