package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/askbook-ai/askbook/internal/cli"
	"github.com/askbook-ai/askbook/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "askbookd",
		Short: "Askbook daemon",
		Long:  "Askbook daemon serving retrieval-augmented answers over textbook content",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
