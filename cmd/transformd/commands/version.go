package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the transformd version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println("transformd", Version)
		},
	}
}
