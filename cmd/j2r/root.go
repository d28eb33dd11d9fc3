// Command j2r migrates a Jira Cloud instance into a self-hosted Redmine.
//
// Every entity family runs as its own subcommand through the same staged
// pipeline: extract to staging, transform into reviewable proposals in the
// mapping database, then push to Redmine once the operator confirms.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jira2redmine/jira2redmine/internal/attachments"
	"github.com/jira2redmine/jira2redmine/internal/config"
	"github.com/jira2redmine/jira2redmine/internal/jira"
	"github.com/jira2redmine/jira2redmine/internal/phase"
	"github.com/jira2redmine/jira2redmine/internal/push"
	"github.com/jira2redmine/jira2redmine/internal/reconcile"
	"github.com/jira2redmine/jira2redmine/internal/redmine"
	"github.com/jira2redmine/jira2redmine/internal/sharepoint"
	"github.com/jira2redmine/jira2redmine/internal/store"
)

var (
	configPath string
	verbose    bool

	phasesFlag     []string
	skipFlag       []string
	confirmPush    bool
	confirmPull    bool
	dryRun         bool
	useExtendedAPI bool
	downloadLimit  int
	uploadLimit    int
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "j2r",
		Short:         "Migrate Jira Cloud projects into Redmine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./j2r.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	for _, family := range phase.Families() {
		root.AddCommand(newFamilyCmd(family))
	}
	root.AddCommand(newSeedCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// signalContext cancels on SIGINT/SIGTERM so a long extraction or push can
// stop at the next row instead of being killed mid-write.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func configLoad() (*config.Config, error) {
	return config.Load(configPath)
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	return store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
}

func newFamilyCmd(family string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   family,
		Short: "Migrate " + family,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := requireCredentials(cfg, family); err != nil {
				return err
			}
			log := newLogger()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			orch := buildOrchestrator(cfg, st, log)
			return orch.Run(ctx, family)
		},
	}
	cmd.Flags().StringSliceVar(&phasesFlag, "phases", nil, "comma-separated phases to run")
	cmd.Flags().StringSliceVar(&skipFlag, "skip", nil, "comma-separated phases to skip")
	cmd.Flags().BoolVar(&confirmPush, "confirm-push", false, "allow writes to Redmine")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview push payloads without sending them")
	cmd.Flags().BoolVar(&useExtendedAPI, "use-extended-api", false, "preserve journal authors via the extended API plugin")
	if family == phase.FamilyAttachments {
		cmd.Flags().BoolVar(&confirmPull, "confirm-pull", false, "allow attachment downloads from Jira")
		cmd.Flags().IntVar(&downloadLimit, "download-limit", 0, "cap downloads handled this run (0 = no cap)")
		cmd.Flags().IntVar(&uploadLimit, "upload-limit", 0, "cap uploads handled this run (0 = no cap)")
	}
	return cmd
}

// requireCredentials validates the config sections the selected phases will
// actually use, so a misconfigured run fails before touching the database.
// Dry runs send nothing, so they only need Jira for extraction phases.
func requireCredentials(cfg *config.Config, family string) error {
	selected, err := phase.Selection(family, phaseOptions())
	if err != nil {
		return err
	}
	for _, ph := range selected {
		switch ph {
		case phase.PhaseJira:
			if family != phase.FamilyAttachments {
				err = cfg.RequireJira()
			}
		case phase.PhasePull:
			if !dryRun {
				err = cfg.RequireJira()
			}
		case phase.PhaseRedmine:
			err = cfg.RequireRedmine()
		case phase.PhasePush:
			if !dryRun {
				err = cfg.RequireRedmine()
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func phaseOptions() phase.Options {
	return phase.Options{
		Phases:      phasesFlag,
		Skip:        skipFlag,
		ConfirmPush: confirmPush,
		ConfirmPull: confirmPull,
		DryRun:      dryRun,
	}
}

func buildOrchestrator(cfg *config.Config, st *store.Store, log *logrus.Logger) *phase.Orchestrator {
	jiraClient := jira.NewClient(cfg.Jira.BaseURL, cfg.Jira.Email, cfg.Jira.APIToken)
	redmineClient := redmine.NewClient(cfg.Redmine.BaseURL, cfg.Redmine.APIKey, cfg.Redmine.ExtendedAPIPrefix)

	var spClient *sharepoint.Client
	if cfg.SharePoint.Configured() {
		spClient = sharepoint.NewClient(cfg.SharePoint, log)
	}
	pipeline := &attachments.Pipeline{
		Store:         st,
		Jira:          jiraClient,
		Redmine:       redmineClient,
		SharePoint:    spClient,
		Log:           log,
		Local:         cfg.Attachments,
		Offload:       cfg.SharePoint,
		DownloadLimit: downloadLimit,
		UploadLimit:   uploadLimit,
		UseExtended:   useExtendedAPI,
	}

	return &phase.Orchestrator{
		Store:      st,
		Extractor:  jira.NewExtractor(jiraClient, st, log),
		Snapshot:   redmine.NewSnapshotter(redmineClient, st, log),
		Reconciler: reconcile.New(st, log, cfg.Defaults),
		Pipeline:   pipeline,
		Pusher: &push.Pusher{
			Store:       st,
			Redmine:     redmineClient,
			Attachments: pipeline,
			Log:         log,
			DryRun:      dryRun,
			UseExtended: useExtendedAPI,
		},
		Log:     log,
		Options: phaseOptions(),
	}
}
