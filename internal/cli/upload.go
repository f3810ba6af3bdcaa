package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/datamart/webapp/internal/form"
	"github.com/datamart/webapp/internal/models"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var ErrUploadFailed = errors.New("upload failed")

type UploadOptions struct {
	GlobalOptions

	File        string
	URL         string
	Name        string
	Description string
	Columns     []string
	DryRun      bool
}

func DefaultUploadOptions() *UploadOptions {
	return &UploadOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdUpload() *cobra.Command {
	o := DefaultUploadOptions()
	cmd := &cobra.Command{
		Use:   "upload (--file PATH | --url URL) --name NAME",
		Short: "Profile a CSV dataset and submit it to the server.",
		Example: "  datamart upload --file cities.csv --name Cities\n" +
			"  datamart upload --url https://example.org/data.csv --name Data --column year=Integer",
		Args: cobra.NoArgs,
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

func (o *UploadOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVarP(&o.File, "file", "f", o.File, "Path of the CSV file to upload")
	fs.StringVar(&o.URL, "url", o.URL, "URL of a CSV file the server should fetch")
	fs.StringVarP(&o.Name, "name", "n", o.Name, "Name of the dataset")
	fs.StringVarP(&o.Description, "description", "d", o.Description, "Description of the dataset")
	fs.StringArrayVarP(&o.Columns, "column", "c", o.Columns, "Override a profiled column type, as NAME=TYPE (repeatable)")
	fs.BoolVar(&o.DryRun, "dry-run", o.DryRun, "Profile and print the form without submitting")
}

func (o *UploadOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.File != "" && o.URL != "" {
		return fmt.Errorf("--file and --url are mutually exclusive")
	}
	var result *multierror.Error
	for _, c := range o.Columns {
		if _, _, err := parseColumn(c); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func parseColumn(s string) (name, typ string, err error) {
	name, typ, ok := strings.Cut(s, "=")
	name, typ = strings.TrimSpace(name), strings.TrimSpace(typ)
	if !ok || name == "" || typ == "" {
		return "", "", fmt.Errorf("invalid column override %q, expected NAME=TYPE", s)
	}
	return name, typ, nil
}

func (o *UploadOptions) Run(ctx context.Context, cmd *cobra.Command) error {
	c, err := o.Client()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	page := form.NewPage(c, c, form.WithLogger(o.Logger()))
	f := page.Form()
	f.SetName(o.Name)
	f.SetDescription(o.Description)

	switch {
	case o.URL != "":
		page.SetMode(form.ModeURL)
		f.SetAddress(o.URL)
		if len(o.Columns) > 0 {
			f.Profile(ctx)
		}
	case o.File != "":
		blob, err := models.BlobFromPath(o.File)
		if err != nil {
			return fmt.Errorf("opening %s: %w", o.File, err)
		}
		f.SelectFile(ctx, blob)
	}

	if len(o.Columns) > 0 {
		if st, failed := f.State().(form.ProfileFailed); failed {
			return fmt.Errorf("profiling failed, cannot override columns: %s", st.Message)
		}
		for _, override := range o.Columns {
			name, typ, _ := parseColumn(override)
			if err := f.UpdateColumnType(typ, name); err != nil {
				return err
			}
		}
	}

	if o.DryRun {
		return form.RenderPage(out(cmd), page)
	}

	ok, err := f.Submit(ctx)
	if rerr := form.RenderPage(out(cmd), page); rerr != nil {
		return rerr
	}
	if err != nil {
		return err
	}
	if !ok {
		return ErrUploadFailed
	}
	return nil
}
