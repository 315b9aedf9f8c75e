package battlectl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/quarrel-labs/internal/domain"
	"github.com/ashureev/quarrel-labs/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved battles, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireOwner(); err != nil {
				return err
			}
			battles, err := a.repo.ListBattles(cmd.Context(), a.owner)
			if err != nil {
				return fmt.Errorf("list battles: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderList(battles))
			return nil
		},
	}
}

func (a *app) battle(cmd *cobra.Command, battleID string) (*domain.Battle, error) {
	if err := a.requireOwner(); err != nil {
		return nil, err
	}
	b, err := a.repo.GetBattle(cmd.Context(), a.owner, battleID)
	if err != nil {
		return nil, fmt.Errorf("get battle: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("battle %s not found", battleID)
	}
	return b, nil
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <battle-id>",
		Short: "Print a saved battle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.battle(cmd, args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderBattle(a.registry, b))
			return nil
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <battle-id>",
		Short: "Delete a saved battle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireOwner(); err != nil {
				return err
			}
			if err := a.repo.DeleteBattle(cmd.Context(), a.owner, args[0]); err != nil {
				return fmt.Errorf("delete battle: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func (a *app) shareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "share <battle-id>",
		Short: "Print a share token for a saved battle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.battle(cmd, args[0])
			if err != nil {
				return err
			}
			token, err := store.EncodeShare(*b)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <token>",
		Short: "Save a shared battle into the owner's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireOwner(); err != nil {
				return err
			}
			b, ok := store.DecodeShare(strings.TrimSpace(args[0]))
			if !ok {
				return errors.New("not a valid share token")
			}
			b.ID = uuid.NewString()
			b.OwnerID = a.owner
			if err := a.repo.SaveBattle(cmd.Context(), b); err != nil {
				return fmt.Errorf("save battle: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%d messages)\n", b.ID, len(b.Messages))
			return nil
		},
	}
}
