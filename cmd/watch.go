package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/bundlekit/bundlekit/internal/logging"
	"github.com/bundlekit/bundlekit/internal/pool"
	"github.com/bundlekit/bundlekit/internal/service"
)

type watchParams struct {
	config    configParams
	overrides overrides
	logging   logging.Config
	interval  time.Duration
	noNotify  bool
}

func init() {
	RootCommand.AddCommand(newWatchCommand())
}

func newWatchCommand() *cobra.Command {
	var params watchParams

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild whenever the sources or externs change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, &params)
		},
	}

	addConfigFlags(watch.Flags(), &params.config)
	addOverrideFlags(watch.Flags(), &params.overrides)
	addLoggingFlags(watch.Flags(), &params.logging)
	watch.Flags().DurationVar(&params.interval, "interval", 2*time.Second, "how often to scan for changes")
	watch.Flags().BoolVar(&params.noNotify, "no-notify", false, "only poll, without file system notifications")

	return watch
}

func runWatch(cmd *cobra.Command, params *watchParams) error {
	ctx := cmd.Context()
	log := logging.New(cmd.ErrOrStderr(), params.logging)

	cfg, err := params.config.load(cmd.Flags(), &params.overrides)
	if err != nil {
		return err
	}

	b, cleanup, err := newBuilder(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	worker := service.NewBuildWorker(b, cfg, log).WithInterval(params.interval)

	const task = "build"
	p := pool.New(ctx, 1)
	p.Add(task, worker.Execute)

	if !params.noNotify {
		dirs := []string{cfg.Sources.Directory, cfg.Externs.Directory}
		if err := service.Watch(ctx, p, task, dirs, log); err != nil {
			log.Warnf("file system notifications unavailable, polling only: %v", err)
		}
	}

	log.Infof("Watching %s", cfg.Sources.Directory)
	<-ctx.Done()
	p.Wait()
	log.Infof("Stopped watching")
	return nil
}
