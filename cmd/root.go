package cmd

import (
	"fmt"
	"os"

	"github.com/flanksource/clicky"
	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	showVersion bool
)

// VersionInfo carries version information for the CLI's pretty-printed
// --version output.
type VersionInfo struct {
	Program string `json:"program" pretty:"label=Program,style=text-blue-600 font-bold"`
	Version string `json:"version" pretty:"label=Version,color=green"`
	Commit  string `json:"commit" pretty:"label=Commit,style=text-gray-600"`
	Built   string `json:"built" pretty:"label=Built,style=text-gray-600"`
	Status  string `json:"status" pretty:"label=Status,color=green=clean,yellow=dirty"`
}

var rootCmd = &cobra.Command{
	Use:   "lintsvc",
	Short: "Runs external linters against submitted code over HTTP",
	Long: `lintsvc runs a curated set of external linter binaries against submitted
code (raw text or tar.gz archives), normalizes their output into a common
issue schema, and caches results by content hash.`,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			printVersion()
			return
		}
		_ = cmd.Help()
	},
}

func printVersion() {
	vInfo := VersionInfo{Program: "lintsvc"}

	if getVersionInfo != nil {
		version, commit, date, isDirty := getVersionInfo()
		status := "clean"
		if isDirty {
			status = "dirty"
		}
		vInfo.Version = version
		vInfo.Commit = commit
		vInfo.Built = date
		vInfo.Status = status
	} else {
		vInfo.Version, vInfo.Commit, vInfo.Built, vInfo.Status = "dev", "unknown", "unknown", "unknown"
	}

	output, err := clicky.Format(vInfo)
	if err != nil {
		fmt.Printf("lintsvc version %s (commit: %s, built: %s, %s)\n", vInfo.Version, vInfo.Commit, vInfo.Built, vInfo.Status)
		return
	}
	fmt.Print(output)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.lintsvc.yaml)")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "V", false, "Show version information")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".lintsvc")
	}

	viper.SetEnvPrefix("lintsvc")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logger.Infof("Using config file: %s", viper.ConfigFileUsed())
	}
}
