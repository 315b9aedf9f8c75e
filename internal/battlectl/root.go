// Package battlectl implements the battlectl admin CLI: inspecting, exporting
// and importing a device's saved battles.
package battlectl

import (
	"errors"
	"fmt"

	"github.com/ashureev/quarrel-labs/internal/advisor"
	"github.com/ashureev/quarrel-labs/internal/config"
	"github.com/ashureev/quarrel-labs/internal/store"
	"github.com/spf13/cobra"
)

// OpenRepo opens the battle store at path.
type OpenRepo func(path string) (store.Repository, error)

type app struct {
	dbPath     string
	owner      string
	openRepo   OpenRepo
	newSpeaker newSpeaker
	repo       store.Repository
	registry   *advisor.Registry
}

// NewRootCmd builds the battlectl command tree. openRepo defaults to the
// SQLite store.
func NewRootCmd(openRepo OpenRepo) *cobra.Command {
	if openRepo == nil {
		openRepo = func(path string) (store.Repository, error) {
			return store.NewSQLite(path)
		}
	}
	a := &app{openRepo: openRepo, newSpeaker: speakerFromEnv}
	return a.rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "battlectl",
		Short: "Inspect and manage saved Quarrel Labs battles",
		Long: `battlectl reads the battle history database used by the server.
Battles are scoped to a device, so most commands need --owner.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "battle database path (default $DB_PATH or ./data/quarrel.db)")
	root.PersistentFlags().StringVarP(&a.owner, "owner", "o", "", "device id owning the battles")

	root.AddCommand(
		a.listCmd(),
		a.showCmd(),
		a.deleteCmd(),
		a.shareCmd(),
		a.importCmd(),
		a.speakCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	reg, err := advisor.Default()
	if err != nil {
		return fmt.Errorf("load advisor catalogue: %w", err)
	}
	a.registry = reg

	if a.dbPath == "" {
		cfg, err := config.LoadStore()
		if err != nil {
			return err
		}
		a.dbPath = cfg.DBPath
	}
	repo, err := a.openRepo(a.dbPath)
	if err != nil {
		return fmt.Errorf("open battle store: %w", err)
	}
	a.repo = repo
	return nil
}

func (a *app) teardown(*cobra.Command, []string) error {
	if a.repo == nil {
		return nil
	}
	err := a.repo.Close()
	a.repo = nil
	return err
}

func (a *app) requireOwner() error {
	if a.owner == "" {
		return errors.New("--owner is required")
	}
	return nil
}
