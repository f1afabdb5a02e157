package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/procview/internal/app"
	"github.com/zjrosen/procview/internal/config"
	"github.com/zjrosen/procview/internal/log"
	"github.com/zjrosen/procview/internal/session"
)

func init() {
	// Query the terminal background before Bubble Tea owns stdin, so the
	// OSC 11 reply does not land in the prompt as garbage.
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

const defaultConfigPath = ".procview/config.yaml"

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
	cfgErr    error
)

var rootCmd = &cobra.Command{
	Use:   "procview",
	Short: "Watch shell command output in read-only documents",
	Long: `procview runs shell commands and shows their live output in read-only,
in-memory documents. Closing a document detaches from its process without
killing it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runApp,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .procview/config.yaml, then ~/.config/procview/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write a debug log (path from PROCVIEW_LOG, default debug.log)")
	rootCmd.PersistentFlags().String("shell", "", "shell used to run commands")
	rootCmd.PersistentFlags().String("work-dir", "", "working directory for commands")
	rootCmd.PersistentFlags().Bool("capture-stderr", false, "show stderr as well as stdout")

	_ = viper.BindPFlag("shell", rootCmd.PersistentFlags().Lookup("shell"))
	_ = viper.BindPFlag("work_dir", rootCmd.PersistentFlags().Lookup("work-dir"))
	_ = viper.BindPFlag("capture_stderr", rootCmd.PersistentFlags().Lookup("capture-stderr"))
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .procview/config.yaml (current directory)
		// 2. ~/.config/procview/config.yaml (user config)
		if _, err := os.Stat(defaultConfigPath); err == nil {
			viper.SetConfigFile(defaultConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "procview"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .procview/config.yaml
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if writeErr := config.WriteDefaultConfig(defaultConfigPath); writeErr == nil {
				viper.SetConfigFile(defaultConfigPath)
				_ = viper.ReadInConfig()
			}
		} else {
			cfgErr = fmt.Errorf("reading config: %w", err)
			return
		}
	}

	cfg, cfgErr = config.Load(viper.GetViper())
}

// initLogging turns on the debug log when --debug or PROCVIEW_DEBUG is set.
func initLogging(prefix string) (func(), error) {
	if os.Getenv("PROCVIEW_DEBUG") == "" && !debugFlag {
		return func() {}, nil
	}

	logPath := os.Getenv("PROCVIEW_LOG")
	if logPath == "" {
		logPath = "debug.log"
	}
	cleanup, err := log.InitWithTeaLog(logPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetMinLevel(lvl)
	}
	log.Info(log.CatConfig, "procview starting", "version", version, "config", viper.ConfigFileUsed())
	return cleanup, nil
}

// configPath is the file config edits and reloads go to.
func configPath() string {
	if p := viper.ConfigFileUsed(); p != "" {
		return p
	}
	if cfgFile != "" {
		return cfgFile
	}
	return defaultConfigPath
}

func runApp(_ *cobra.Command, _ []string) error {
	if cfgErr != nil {
		return cfgErr
	}

	cleanup, err := initLogging("procview")
	if err != nil {
		return err
	}
	defer cleanup()

	host := app.NewHost()
	sess, err := session.New(cfg, session.WithHost(host))
	if err != nil {
		return err
	}

	model := app.New(sess, cfg, configPath())
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	host.Attach(p)

	_, err = p.Run()

	if closeErr := model.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if closeErr := sess.Close(context.Background()); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
