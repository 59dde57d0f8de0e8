package main

import (
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/nan80211/nand/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print nand build information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(appversion.Full("nand"))
		},
	}
}
