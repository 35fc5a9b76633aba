package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	daemon "gopkg.in/sevlyar/go-daemon.v0"

	"github.com/dbguardian/dbguardian/common"
	"github.com/dbguardian/dbguardian/config"
	"github.com/dbguardian/dbguardian/log"
	"github.com/dbguardian/dbguardian/repository"
	_ "github.com/dbguardian/dbguardian/repository/gormdb"
	_ "github.com/dbguardian/dbguardian/repository/local"
	"github.com/dbguardian/dbguardian/server"
	"github.com/dbguardian/dbguardian/service/cron"
	"github.com/dbguardian/dbguardian/service/runner"
)

const (
	MARK_NAME  = "_GO_DBGUARDIAN_RELOAD"
	MARK_VALUE = "1"
)

var (
	Version         = ""
	BuildTimeStamp  = ""
	GitCommitHash   = ""
	Daemon          = false
	ConfigFilePath  = ""
	LogFilePath     = ""
	PidFilePath     = ""
	EncryptPassword = false
)

func main() {
	InitCmd()
	if err := config.ParseConfigFile(ConfigFilePath, Version); err != nil {
		fmt.Printf("Parse config file %s fail: %v\n", ConfigFilePath, err)
		os.Exit(1)
	}
	log.InitLogger(LogFilePath, &config.GlobalConfig.Log)

	cntxt := &daemon.Context{
		PidFileName: PidFilePath,
		PidFilePerm: 0644,
		LogFilePerm: 0640,
		WorkDir:     "./",
		Umask:       027,
	}

	if Daemon && os.Getenv(MARK_NAME) != MARK_VALUE {
		d, err := cntxt.Reborn()
		if err != nil {
			log.Logger.Fatal(err)
		}
		if d != nil {
			return
		}
		defer cntxt.Release()
	}

	log.Logger.Info("dbguardian starting...")
	log.Logger.Infof("version: %v", Version)
	log.Logger.Infof("build time: %v", BuildTimeStamp)
	log.Logger.Infof("git commit hash: %v", GitCommitHash)
	DumpConfig(config.GlobalConfig)
	if config.GlobalConfig.Server.Ip == "" {
		config.GlobalConfig.Server.Ip = common.GetOutboundIP().String()
	}
	signalCh := make(chan os.Signal, 1)

	if err := repository.InitPersistent(); err != nil {
		log.Logger.Fatalf("init persistent failed: %v", err)
	}

	runnerServ := runner.NewRunnerService(config.GlobalConfig.Server, config.GlobalConfig.Backup)
	runnerServ.Start()
	defer runnerServ.Stop()

	// start http server
	svr := server.NewApiServer(&config.GlobalConfig)
	if err := svr.Start(); err != nil {
		log.Logger.Fatalf("start http server fail: %v", err)
	}
	defer svr.Stop()
	log.Logger.Infof("start http server %s:%d success", config.GlobalConfig.Server.Ip, config.GlobalConfig.Server.Port)

	if config.GlobalConfig.Cron.Enabled {
		cronSvr := cron.NewCronService(config.GlobalConfig.Cron)
		if err := cronSvr.Start(); err != nil {
			log.Logger.Fatalf("Failed to start cron service, %v", err)
		}
		defer cronSvr.Stop()
	}

	//block here, waiting for terminal signal
	handleSignal(signalCh)
}

func handleSignal(ch chan os.Signal) {
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	sig := <-ch
	log.Logger.Infof("receive signal: %v", sig)
	log.Logger.Warn("dbguardian exiting...")
	if sig == syscall.SIGHUP {
		_ = reloadHandler()
	}
	signal.Stop(ch)
}

func reloadHandler() error {
	env := os.Environ()
	mark := fmt.Sprintf("%s=%s", MARK_NAME, MARK_VALUE)
	env = append(env, mark)

	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = env
	return cmd.Start()
}

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version info",
	Long:  "Print version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("version: %v\n", Version)
		fmt.Printf("build time: %v\n", BuildTimeStamp)
		fmt.Printf("git commit hash: %v\n", GitCommitHash)
		os.Exit(0)
	},
}

func InitCmd() {
	var rootCmd = &cobra.Command{
		Use: "dbguardian",
		Long: heredoc.Doc(`
			dbguardian orchestrates MySQL backups and restores.
			It schedules logical and physical backups against registered
			instances, keeps incremental chains consistent, and can verify
			or restore any stored artifact.`),
	}

	rootCmd.PersistentFlags().StringVarP(&ConfigFilePath, "conf", "c", "conf/dbguardian.hjson", "Config file path")
	rootCmd.PersistentFlags().StringVarP(&LogFilePath, "log", "l", "logs/dbguardian.log", "Log file path")
	rootCmd.PersistentFlags().StringVarP(&PidFilePath, "pid", "p", "run/dbguardian.pid", "Pid file path")
	rootCmd.PersistentFlags().BoolVarP(&EncryptPassword, "encrypt", "e", false, "Encrypt a password read from the terminal")
	rootCmd.PersistentFlags().BoolVarP(&Daemon, "daemon", "d", false, "Run as daemon")
	rootCmd.AddCommand(VersionCmd)

	rootCmd.SetUsageFunc(func(cmd *cobra.Command) error {
		return nil
	})
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:   "help",
		Short: "Help about any command",
		Long:  "Help about any command",
		Run: func(cmd *cobra.Command, args []string) {
			rootCmd.SetUsageFunc(nil)
			_ = rootCmd.Help()
			os.Exit(0)
		},
	})
	_ = rootCmd.Execute()
	if EncryptPassword {
		fmt.Print("password: ")
		plain, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fmt.Printf("read password fail: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(common.AesEncryptECB(string(plain)))
		os.Exit(0)
	}
	fmt.Printf("dbguardian-%v is running...\n", Version)
	fmt.Printf("See more information in %s\n", LogFilePath)
}

func DumpConfig(conf config.GuardianConfig) {
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		log.Logger.Errorf("marshal error: %v", err)
		return
	}
	log.Logger.Infof("%v", string(data))
}
