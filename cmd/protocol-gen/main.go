package main

import (
	"fmt"
	"os"

	"github.com/goran-ethernal/GovIndexor/internal/codegen"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	// Flags
	name        string
	events      []string
	abiFile     string
	output      string
	packageName string
	importPath  string
	module      string
	force       bool
	dryRun      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "protocol-gen",
	Short: "Generate protocol modules from event signatures",
	Long: `protocol-gen creates a protocol module for the indexer from Solidity event
signatures or a contract ABI. The module registers itself under the package
name and stores one entity per handled event; its writers are the starting
point for protocol specific aggregates.`,
	Version: version,
	Example: `  # Generate a timelock protocol
  protocol-gen --name Timelock \
    --event "CallScheduled(bytes32 indexed id, uint256 indexed index, address target, uint256 value, bytes data, bytes32 predecessor, uint256 delay)" \
    --event "CallExecuted(bytes32 indexed id, uint256 indexed index, address target, uint256 value, bytes data)"

  # Generate from every event of an ABI file
  protocol-gen --name Votes --abi ./abi/ERC20Votes.json --output ./examples/protocols/votes

  # Preview generation without writing files
  protocol-gen --name MyToken \
    --event "Transfer(address,address,uint256)" \
    --dry-run`,
	RunE: runGenerate,
}

func init() {
	rootCmd.Flags().StringVarP(&name, "name", "n", "", "contract name (required, PascalCase, e.g., 'Timelock')")
	rootCmd.Flags().StringArrayVarP(&events, "event", "e", []string{},
		"event signature (can be specified multiple times)")
	rootCmd.Flags().StringVarP(&abiFile, "abi", "a", "", "contract ABI JSON file to take the events from")
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "output directory (default: ./protocols/<name_lowercase>)")
	rootCmd.Flags().StringVarP(&packageName, "package", "p", "", "Go package name and protocol type (default: derived from name)")
	rootCmd.Flags().StringVarP(&importPath, "import", "i", "", "Go import path (default: auto-detected from go.mod)")
	rootCmd.Flags().StringVarP(&module, "module", "m", codegen.DefaultModule, "module path of the indexer packages")
	rootCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing files")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be generated without writing files")

	// Mark required flags
	_ = rootCmd.MarkFlagRequired("name")
	rootCmd.MarkFlagsOneRequired("event", "abi")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	signatures := events
	if abiFile != "" {
		f, err := os.Open(abiFile)
		if err != nil {
			return fmt.Errorf("failed to open ABI: %w", err)
		}
		defer f.Close()

		fromABI, err := codegen.EventsFromABI(f)
		if err != nil {
			return fmt.Errorf("%s: %w", abiFile, err)
		}
		signatures = append(signatures, fromABI...)
	}

	// Create generator
	gen := &codegen.Generator{
		Name:       name,
		Package:    packageName,
		Events:     signatures,
		OutputDir:  output,
		ImportPath: importPath,
		Module:     module,
		Force:      force,
		DryRun:     dryRun,
	}

	// Generate protocol files
	files, err := gen.Generate()
	if err != nil {
		return err
	}

	// Print summary
	if !dryRun {
		gen.PrintSummary(files)
	} else {
		fmt.Println("\nDry run complete. No files were created.")
	}

	return nil
}
