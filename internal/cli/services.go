package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/butler/internal/hydrus"
)

// ServiceEntry is one service in the services listing.
type ServiceEntry struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Type     int    `json:"type"`
	TypeName string `json:"type_pretty"`
	MaxStars int    `json:"max_stars,omitempty"`
}

// NewServicesCommand creates the services command.
func NewServicesCommand(rootOpts *RootOptions) *cobra.Command {
	var localOnly bool

	cmd := &cobra.Command{
		Use:   "services",
		Short: "List the remote service catalog",
		Long: `Fetch and list the services known to the Hydrus client. Rules refer
to services by key; use this to find them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServices(rootOpts, localOnly, cmd)
		},
	}

	cmd.Flags().BoolVar(&localOnly, "local", false, "only list local file domains")
	return cmd
}

func runServices(opts *RootOptions, localOnly bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	settings, err := resolveSettings(opts)
	if err != nil {
		return err
	}
	client := hydrus.New(settings.APIAddress, settings.APIKey, hydrus.WithTimeout(settings.RequestTimeout()))
	catalog := hydrus.NewCatalog(client)

	ctx, stop := signalContext(cmd)
	defer stop()

	formatter.VerboseLog("Fetching services from %s", settings.APIAddress)
	if err := catalog.Refresh(ctx); err != nil {
		_ = formatter.Error(ErrCodeRemote, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load services", err)
	}

	services := catalog.All()
	if localOnly {
		services = catalog.LocalFileDomains()
	}

	entries := make([]ServiceEntry, 0, len(services))
	for _, s := range services {
		entries = append(entries, ServiceEntry{
			Key:      s.Key,
			Name:     s.Name,
			Type:     int(s.Type),
			TypeName: s.TypePretty,
			MaxStars: s.MaxStars,
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}

	keyWidth := len("KEY")
	for _, e := range entries {
		keyWidth = max(keyWidth, len(e.Key))
	}
	fmt.Fprintf(formatter.Writer, "%-*s  %4s  %s\n", keyWidth, "KEY", "TYPE", "NAME")
	for _, e := range entries {
		fmt.Fprintf(formatter.Writer, "%-*s  %4d  %s (%s)\n", keyWidth, e.Key, e.Type, e.Name, e.TypeName)
	}
	fmt.Fprintf(formatter.Writer, "%s services, loaded %s\n",
		humanize.Comma(int64(len(entries))), humanize.Time(catalog.LoadedAt()))
	return nil
}
