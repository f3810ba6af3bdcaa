package cli

import (
	"fmt"
	"io"

	"github.com/datamart/webapp/internal/client"
	dmlog "github.com/datamart/webapp/internal/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type GlobalOptions struct {
	ServerUrl string
	LogLevel  string
	UserAgent string

	log *zap.Logger
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ServerUrl: "http://localhost:8002",
		LogLevel:  "warn",
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ServerUrl, "server-url", "u", o.ServerUrl, "Address of the datamart server")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&o.UserAgent, "user-agent", o.UserAgent, "User-Agent header sent to the server (default Datamart)")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	level, err := dmlog.ParseLevel(o.LogLevel)
	if err != nil {
		return err
	}
	o.log = dmlog.InitLog(level)
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	if o.ServerUrl == "" {
		return fmt.Errorf("--server-url is required")
	}
	return nil
}

func (o *GlobalOptions) Logger() *zap.Logger {
	if o.log == nil {
		return zap.NewNop()
	}
	return o.log
}

func (o *GlobalOptions) Client() (*client.Client, error) {
	return client.New(o.ServerUrl, client.WithLogger(o.Logger()), client.WithUserAgent(o.UserAgent))
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
