// Command bento launches a single command inside a minimal Linux
// application container: a fresh set of namespaces, a staged and pivoted
// root filesystem, an optional user-namespace identity mapping, a cgroup
// v2 resource limit, and a narrowed capability/seccomp surface.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kevinji/bento/internal/bootstrap"
	"github.com/kevinji/bento/internal/config"
	log "github.com/kevinji/bento/internal/minilog"
	"github.com/kevinji/bento/internal/sockpair"
	"github.com/kevinji/bento/internal/supervisor"
)

var (
	commandFlag  string
	uidFlag      uint32
	mountFlag    string
	hostnameFlag string
	copyFlag     []string
	verboseFlag  bool
	logfileFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "bento",
	Short: "Launch a command inside a minimal Linux container",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSupervisor()
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Flags().StringVar(&commandFlag, "command", "", "executable path plus whitespace-separated arguments (required)")
	rootCmd.Flags().Uint32Var(&uidFlag, "uid", 0, "numeric identity inside the container (required)")
	rootCmd.Flags().StringVar(&mountFlag, "mount", "", "root directory for the container; created recursively if absent (required)")
	rootCmd.Flags().StringVar(&hostnameFlag, "hostname", "", "hostname to set inside the container")
	rootCmd.Flags().StringArrayVar(&copyFlag, "copy", nil, "additional executable to stage (repeatable)")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", true, "log to stderr")
	rootCmd.PersistentFlags().StringVar(&logfileFlag, "log-file", "", "also log to this file")

	rootCmd.MarkFlagRequired("command")
	rootCmd.MarkFlagRequired("uid")
	rootCmd.MarkFlagRequired("mount")

	viper.BindPFlags(rootCmd.Flags())
}

func initConfig() {
	viper.SetEnvPrefix("BENTO")
	viper.AutomaticEnv()
}

func main() {
	// A process re-exec'd by the supervisor carries the child marker as
	// argv[1]; dispatch straight to the bootstrap state machine rather
	// than going through cobra, since the child never parses flags.
	if len(os.Args) > 1 && os.Args[1] == supervisor.ChildArg {
		runChild()
		return
	}

	Execute()
}

func runSupervisor() error {
	if err := log.Init(log.INFO, verboseFlag, logfileFlag); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	argv, command, err := splitCommand(commandFlag)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(mountFlag, 0755); err != nil {
		return fmt.Errorf("create mount dir %s: %w", mountFlag, err)
	}

	cfg := &config.Container{
		Command:        command,
		Argv:           argv,
		UID:            uidFlag,
		MountDir:       mountFlag,
		Hostname:       hostnameFlag,
		CommandsToCopy: copyFlag,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sup, err := supervisor.New(cfg, "", log.Log())
	if err != nil {
		return fmt.Errorf("launch container: %w", err)
	}

	var runErr error
	if err := sup.Handshake(cfg.UID); err != nil {
		runErr = fmt.Errorf("handshake: %w", err)
		log.Error("%v", runErr)
	} else if err := sup.Wait(); err != nil {
		runErr = err
	}

	if err := sup.Destroy(runErr); err != nil {
		return err
	}
	return nil
}

// runChild is the entry point for the re-exec'd process: it decodes the
// config passed through the environment, reconstructs the inherited
// handshake descriptor, and hands off to the bootstrap state machine. Any
// failure here logs and exits 1, per section 4.7.
func runChild() {
	if err := log.Init(log.INFO, true, ""); err != nil {
		os.Exit(1)
	}

	encoded := os.Getenv(supervisor.ChildEnv)
	var cfg config.Container
	if err := json.Unmarshal([]byte(encoded), &cfg); err != nil {
		log.Error("decode child config: %v", err)
		os.Exit(1)
	}

	// fd 3 is the first ExtraFiles entry the supervisor passed across
	// clone; 0, 1, 2 remain stdio.
	childFile := os.NewFile(3, "bento-handshake-child")
	sock := &sockpair.Pair{Child: childFile}

	if err := bootstrap.Run(&cfg, sock, log.Log()); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

// splitCommand parses the --command flag's "<path> [args...]" form into an
// argv slice and the absolute executable path, which must equal argv[0].
func splitCommand(raw string) (argv []string, command string, err error) {
	fields := splitFields(raw)
	if len(fields) == 0 {
		return nil, "", fmt.Errorf("--command must not be empty")
	}
	return fields, fields[0], nil
}

func splitFields(s string) []string {
	var fields []string
	var cur []byte
	flush := func() {
		if len(cur) > 0 {
			fields = append(fields, string(cur))
			cur = nil
		}
	}
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' {
			flush()
			continue
		}
		cur = append(cur, s[i])
	}
	flush()
	return fields
}
