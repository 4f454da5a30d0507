package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jkaninda/gitcreds/internal/credentials"
)

var (
	addConfigPath  string
	addUsername    string
	addDescription string
	addKeyFile     string
	addOwner       string

	removeConfigPath string
)

var addCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Store or update an SSH private-key credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var removeCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a stored credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	addCmd.Flags().StringVar(&addConfigPath, "config", "", "path to config file")
	addCmd.Flags().StringVar(&addUsername, "username", "", "SSH username the key authenticates as")
	addCmd.Flags().StringVar(&addDescription, "description", "", "human-readable label")
	addCmd.Flags().StringVar(&addKeyFile, "key-file", "", "path to the private key file")
	addCmd.Flags().StringVar(&addOwner, "owner", "", "owning user ID (empty = system-scoped)")
	_ = addCmd.MarkFlagRequired("username")
	_ = addCmd.MarkFlagRequired("key-file")

	removeCmd.Flags().StringVar(&removeConfigPath, "config", "", "path to config file")
}

func runAdd(_ *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := loadConfig(addConfigPath)
	if err != nil {
		return err
	}

	key, err := os.ReadFile(addKeyFile)
	if err != nil {
		return fmt.Errorf("reading key file: %w", err)
	}

	repo, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	cand := credentials.Candidate{
		ID:          args[0],
		Username:    addUsername,
		Description: addDescription,
		PrivateKey:  key,
	}
	if err := repo.Put(context.Background(), cand, addOwner); err != nil {
		return err
	}

	scope := "system"
	if addOwner != "" {
		scope = "user " + addOwner
	}
	fmt.Printf("stored credential %s (%s)\n", cand.ID, scope)
	return nil
}

func runRemove(_ *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := loadConfig(removeConfigPath)
	if err != nil {
		return err
	}

	repo, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted credential %s\n", args[0])
	return nil
}
