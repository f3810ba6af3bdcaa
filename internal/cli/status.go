package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datamart/webapp/internal/models"
	"github.com/datamart/webapp/internal/status"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type StatusOptions struct {
	GlobalOptions

	Watch    bool
	Interval time.Duration
}

func DefaultStatusOptions() *StatusOptions {
	return &StatusOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Interval:      status.DefaultInterval,
	}
}

func NewCmdStatus() *cobra.Command {
	o := DefaultStatusOptions()
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connected workers, recent discoveries and local storage.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), cmd)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *StatusOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.BoolVarP(&o.Watch, "watch", "w", o.Watch, "Keep polling and print every new report")
	fs.DurationVar(&o.Interval, "interval", o.Interval, "Polling interval in watch mode")
}

func (o *StatusOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.Watch && o.Interval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	return nil
}

func (o *StatusOptions) Run(ctx context.Context, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	if !o.Watch {
		report, err := c.Status(ctx)
		if err != nil {
			return fmt.Errorf("fetching status: %w", err)
		}
		stats, err := c.Statistics(ctx)
		if err != nil {
			return fmt.Errorf("fetching statistics: %w", err)
		}
		sections := append(status.Render(report), status.RenderSources(stats))
		return status.WriteText(out(cmd), sections)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := out(cmd)
	poller := status.NewPoller(c, func(report *models.StatusReport, err error) {
		if err != nil {
			o.Logger().Warn("status poll failed", zap.Error(err))
			return
		}
		fmt.Fprintf(w, "--- %s\n", time.Now().Format(time.RFC3339))
		_ = status.WriteText(w, status.Render(report))
	}, status.WithInterval(o.Interval), status.WithLogger(o.Logger()))

	if err := poller.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	poller.Stop()
	return nil
}
