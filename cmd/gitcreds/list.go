package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jkaninda/gitcreds/internal/credentials"
)

var (
	listConfigPath string
	listOwner      string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credentials (no key material)",
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listConfigPath, "config", "", "path to config file")
	listCmd.Flags().StringVar(&listOwner, "owner", "", "list a user's credentials instead of system ones")
}

func runList(_ *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := loadConfig(listConfigPath)
	if err != nil {
		return err
	}

	repo, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	access := credentials.System()
	if listOwner != "" {
		access = credentials.ForUser(listOwner)
	}

	candidates, err := repo.Lookup(context.Background(), credentials.KindSSHPrivateKey, access)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("no credentials stored")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tLABEL")
	for _, cand := range candidates {
		fmt.Fprintf(w, "%s\t%s\t%s\n", cand.ID, cand.Username, cand.DisplayLabel())
	}
	return w.Flush()
}
