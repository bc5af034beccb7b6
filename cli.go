package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/static-hub/static-hub/internal/config"
)

// 子命令名称。
const (
	cmdServe       = "serve"
	cmdCheckConfig = "check-config"
	cmdVersion     = "version"
	cmdSweep       = "sweep"
	cmdPurge       = "purge"
	cmdEdgeRules   = "edge-rules"
	cmdHelp        = "help"
)

// cliOptions 汇总 CLI 解析后的结果，便于在测试中注入。
type cliOptions struct {
	command    string
	configPath string
	// purge
	purgeURL string
	// edge-rules
	dialect    string
	writeRules bool
}

// parseCLIFlags 使用 cobra 解析子命令与标志，并结合环境变量计算最终的配置路径。
// 不带子命令时等同于 serve；--check-config / --version 保留为根命令的快捷方式。
func parseCLIFlags(args []string) (cliOptions, error) {
	opts := cliOptions{command: cmdHelp}
	var (
		configFlag  string
		checkOnly   bool
		showVersion bool
	)

	selectCommand := func(name string) {
		opts.command = name
		opts.configPath = config.ResolvePath(configFlag)
	}

	root := &cobra.Command{
		Use:   "static-hub",
		Short: "Static page cache in front of a dynamic origin",
		Long: `static-hub serves rendered pages from a disk cache, forwards misses to the
origin, keeps the cache fresh through content events and an hourly expiry
sweep, and renders Apache/nginx rules for serving assets at the edge.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case showVersion:
				selectCommand(cmdVersion)
			case checkOnly:
				selectCommand(cmdCheckConfig)
			default:
				selectCommand(cmdServe)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 "+config.EnvConfigPath+" 覆盖）")
	root.Flags().BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	root.Flags().BoolVar(&showVersion, "version", false, "显示版本信息")

	root.AddCommand(
		&cobra.Command{
			Use:   cmdServe,
			Short: "Run the caching front server",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				selectCommand(cmdServe)
				return nil
			},
		},
		&cobra.Command{
			Use:   cmdCheckConfig,
			Short: "Validate the configuration and exit",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				selectCommand(cmdCheckConfig)
				return nil
			},
		},
		&cobra.Command{
			Use:   cmdVersion,
			Short: "Show version information",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				selectCommand(cmdVersion)
				return nil
			},
		},
		&cobra.Command{
			Use:   cmdSweep,
			Short: "Remove cached pages older than the configured lifespan",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				selectCommand(cmdSweep)
				return nil
			},
		},
		newPurgeCommand(&opts, selectCommand),
		newEdgeRulesCommand(&opts, selectCommand),
	)

	root.SetArgs(args)
	root.SetOut(stdOut)
	root.SetErr(io.Discard)
	if err := root.Execute(); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	return opts, nil
}

func newPurgeCommand(opts *cliOptions, selectCommand func(string)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   cmdPurge,
		Short: "Flush the whole page cache, or a single URL with --url",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			selectCommand(cmdPurge)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.purgeURL, "url", "", "只删除该 URL 的缓存（绝对 URL）")
	return cmd
}

func newEdgeRulesCommand(opts *cliOptions, selectCommand func(string)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   cmdEdgeRules + " [dialect]",
		Short: "Print edge rules, or write them to the configured files with --write",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			selectCommand(cmdEdgeRules)
			if len(args) == 1 {
				opts.dialect = strings.ToLower(strings.TrimSpace(args[0]))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.writeRules, "write", false, "写入 ApacheRulesPath / NginxRulesPath")
	return cmd
}
