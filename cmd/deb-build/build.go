package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/etnz/deb-builder/deb"
	"github.com/etnz/deb-builder/manifest"
	"github.com/etnz/deb-builder/toolchain"
	"github.com/spf13/cobra"
)

var (
	manifestPath string
	variant      string
	defines      = make(kvFlags)
	buildOpts    manifest.Options
	install      bool
)

func init() {
	buildCmd.Flags().StringVarP(&manifestPath, "manifest", "m", "deb.yaml", "Path to the package manifest (YAML or JSON)")
	buildCmd.Flags().StringVar(&variant, "variant", "", "Build the named manifest variant")
	buildCmd.Flags().Var(&defines, "define", "Override a template variable (KEY=VALUE)")
	buildCmd.Flags().StringVarP(&buildOpts.Output, "output", "o", "", "Output file or directory")
	buildCmd.Flags().StringVar(&buildOpts.Version, "deb-version", "", "Override the package version, revision included")
	buildCmd.Flags().BoolVar(&buildOpts.NoBuild, "no-build", false, "Skip the build command")
	buildCmd.Flags().BoolVar(&buildOpts.NoStrip, "no-strip", false, "Do not strip built binaries")
	buildCmd.Flags().BoolVar(&install, "install", false, "Install the package with dpkg once built")
	rootCmd.AddCommand(buildCmd)
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the package described by a manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd.ErrOrStderr(), logFormat, verbose)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		cfg, err := manifest.Load(manifestPath, variant, defines)
		if err != nil {
			return err
		}
		path, err := manifest.Assemble(ctx, cfg, buildOpts, deb.NewLogListener(logger))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)

		if install {
			logger.Info("Installing package", "path", path)
			if err := toolchain.Install(ctx, path); err != nil {
				return err
			}
		}
		return nil
	},
}
