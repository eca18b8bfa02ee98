package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cognicore/tagsync/pkg/tagsync/config"
	"github.com/cognicore/tagsync/pkg/tagsync/store"
)

var showCmd = &cobra.Command{
	Use:   "show [flags] [DOC-ID]",
	Short: "List stored documents or print one with its annotations",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	showCmd.Flags().String("db", "", "Document store path, overrides store.path")
	bindFlags(showCmd, "config", "db")

	if err := showCmd.MarkFlagRequired("config"); err != nil {
		panic(fmt.Sprintf("mark config flag as required: %v", err))
	}
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	loader := config.Loader{
		ConfigPath: viper.GetString("show.config"),
		StorePath:  viper.GetString("show.db"),
	}
	comp, err := loader.Load()
	if err != nil {
		return err
	}
	st, err := comp.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(args) == 0 {
		infos, err := st.ListDocuments(ctx)
		if err != nil {
			return err
		}
		return writeDocInfos(cmd.OutOrStdout(), infos)
	}

	rec, err := st.LoadDocument(ctx, args[0])
	if err != nil {
		return err
	}
	doc, err := store.Restore(rec, comp.TypeSystem)
	if err != nil {
		return fmt.Errorf("restore document %s: %w", rec.ID, err)
	}
	return newDocumentWriter(cmd.OutOrStdout()).Write(doc)
}
