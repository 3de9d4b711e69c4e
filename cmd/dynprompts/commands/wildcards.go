package commands

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/benjaminschreck/go-dynprompts/pkg/generator"
	"github.com/benjaminschreck/go-dynprompts/pkg/wildcard"
)

func newWildcardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wildcards",
		Short: "Inspect the configured wildcards",
		Long: `Inspect the wildcards loaded from --wildcards and --wildcards-db.

Examples:
  dynprompts wildcards list --wildcards ./wildcards
  dynprompts wildcards show colors --resolve`,
	}
	cmd.AddCommand(newWildcardsListCmd(), newWildcardsShowCmd())
	return cmd
}

func newWildcardsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List wildcard names and their value counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, closeStore, err := settingsFrom(cmd).openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			lister, ok := store.(wildcard.Lister)
			if !ok {
				return errors.New("the configured wildcard store cannot list its names")
			}
			names := lister.Names()
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				pterm.Info.WithWriter(out).Println("No wildcards found")
				return nil
			}

			data := pterm.TableData{{"Name", "Values"}}
			for _, name := range names {
				data = append(data, []string{name, strconv.Itoa(len(store.GetAllValues(name)))})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(out).Render()
		},
	}
}

func newWildcardsShowCmd() *cobra.Command {
	var resolve bool

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show the values of a wildcard",
		Long: `Show the values of a wildcard. With --resolve, nested wildcard
references are expanded and inline choices are reduced, as templates
see them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := settingsFrom(cmd)
			store, _, closeStore, err := settings.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			values := store.GetAllValues(args[0])
			if resolve {
				opts := []generator.EnvironmentOption{generator.WithMaxWildcardDepth(settings.Generator.MaxWildcardDepth)}
				if settings.Generator.Seed != nil {
					opts = append(opts, generator.WithSeed(*settings.Generator.Seed))
				}
				values, err = generator.NewEnvironment(store, opts...).Wildcard(args[0])
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if len(values) == 0 {
				pterm.Info.WithWriter(out).Println(fmt.Sprintf("Wildcard '%s' has no values", wildcard.BareName(args[0])))
				return nil
			}
			items := make([]pterm.BulletListItem, len(values))
			for i, v := range values {
				items[i] = pterm.BulletListItem{Level: 0, Text: v}
			}
			return pterm.DefaultBulletList.WithItems(items).WithWriter(out).Render()
		},
	}

	cmd.Flags().BoolVar(&resolve, "resolve", false, "expand nested wildcards and inline choices")
	return cmd
}
