package main

import (
	"fmt"

	"github.com/goran-ethernal/GovIndexor/pkg/protocol"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available protocol types",
	Long:  `List all registered protocol types that can be enabled on a network in the configuration file.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Available protocol types:")
		types := protocol.ListRegistered()
		if len(types) == 0 {
			fmt.Println("  (no protocols registered)")
			return
		}
		for _, t := range types {
			fmt.Printf("  - %s\n", t)
		}
	},
}
