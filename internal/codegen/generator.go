package codegen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	mkdirPerm = 0755
	filePerm  = 0644
)

// DefaultModule is the module generated protocols import the indexer packages from.
const DefaultModule = "github.com/goran-ethernal/GovIndexor"

// Generator generates a protocol module from event signatures.
type Generator struct {
	Name       string   // Contract name (e.g., "Timelock")
	Package    string   // Go package name (e.g., "timelock")
	Events     []string // Event signatures
	OutputDir  string   // Output directory path
	ImportPath string   // Go import path of the generated package
	Module     string   // Module path of the indexer packages
	Force      bool     // Overwrite existing files
	DryRun     bool     // Don't write files, just show what would be generated

	events []*EventSignature
}

// GeneratedFiles represents the files that were generated.
type GeneratedFiles struct {
	ProtocolFile string // Path to protocol.go
	WritersFile  string // Path to writers.go
	ReadmeFile   string // Path to README.md
}

// Generate generates all protocol files.
func (g *Generator) Generate() (*GeneratedFiles, error) {
	// Validate inputs
	if err := g.validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	// Parse event signatures
	events, err := g.parseEvents()
	if err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}

	// Determine package name if not provided
	if g.Package == "" {
		g.Package = strings.ToLower(g.Name)
	}

	// Determine output directory if not provided
	if g.OutputDir == "" {
		g.OutputDir = filepath.Join(".", "protocols", g.Package)
	}

	modulePath, modErr := getModulePath()
	if g.Module == "" {
		g.Module = DefaultModule
	}

	// Determine import path if not provided
	if g.ImportPath == "" {
		if modErr != nil {
			g.ImportPath = "yourproject/protocols/" + g.Package
		} else {
			// Clean output path and convert to import path format
			cleanPath := filepath.Clean(g.OutputDir)
			cleanPath = strings.TrimPrefix(cleanPath, "./")
			cleanPath = filepath.ToSlash(cleanPath)
			g.ImportPath = modulePath + "/" + cleanPath
		}
	}

	abiJSON, err := ABIJSON(events)
	if err != nil {
		return nil, err
	}
	g.events = events

	// Prepare template data
	data := &TemplateData{
		Name:       g.Name,
		Package:    g.Package,
		Type:       g.Package,
		Module:     g.Module,
		ImportPath: g.ImportPath,
		ABI:        abiJSON,
		Events:     events,
	}

	// Check if output directory exists
	if !g.Force {
		if _, err := os.Stat(g.OutputDir); err == nil {
			return nil, fmt.Errorf("output directory already exists: %s (use --force to overwrite)", g.OutputDir)
		}
	}

	// Create output directory
	if !g.DryRun {
		if err := os.MkdirAll(g.OutputDir, mkdirPerm); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Generate all files
	type fileGen struct {
		path     *string
		render   func(*TemplateData) (string, error)
		filename string
		desc     string
	}

	files := &GeneratedFiles{}
	fileGens := []fileGen{
		{&files.ProtocolFile, RenderProtocol, "protocol.go", "protocol"},
		{&files.WritersFile, RenderWriters, "writers.go", "writers"},
		{&files.ReadmeFile, RenderReadme, "README.md", "readme"},
	}

	for _, fg := range fileGens {
		content, err := fg.render(data)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", fg.desc, err)
		}

		path := filepath.Join(g.OutputDir, fg.filename)
		*fg.path = path

		if err := g.writeFile(path, content); err != nil {
			return nil, err
		}
	}

	return files, nil
}

// validate validates the generator configuration.
func (g *Generator) validate() error {
	if g.Name == "" {
		return fmt.Errorf("contract name is required")
	}

	if len(g.Events) == 0 {
		return fmt.Errorf("at least one event signature is required")
	}

	// Validate name format (should be PascalCase)
	if !strings.Contains(g.Name, " ") && len(g.Name) > 0 {
		firstChar := rune(g.Name[0])
		if firstChar < 'A' || firstChar > 'Z' {
			return fmt.Errorf("contract name should start with an uppercase letter: %s", g.Name)
		}
	}

	return nil
}

// parseEvents parses event signature strings into EventSignature objects.
func (g *Generator) parseEvents() ([]*EventSignature, error) {
	events := make([]*EventSignature, 0, len(g.Events))
	eventNames := make(map[string]bool)

	for i, sig := range g.Events {
		event, err := ParseEventSignature(sig)
		if err != nil {
			return nil, fmt.Errorf("invalid event signature #%d '%s': %w", i+1, sig, err)
		}

		// Check for duplicate event names
		if eventNames[event.Name] {
			return nil, fmt.Errorf("duplicate event name: %s", event.Name)
		}
		eventNames[event.Name] = true

		events = append(events, event)
	}

	return events, nil
}

// writeFile writes content to a file, respecting DryRun and Force flags.
func (g *Generator) writeFile(path, content string) error {
	if g.DryRun {
		fmt.Printf("Would create: %s\n", path)
		return nil
	}

	// Create parent directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, mkdirPerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// Check if file exists and Force is not set
	if !g.Force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s (use --force to overwrite)", path)
		}
	}

	if err := os.WriteFile(path, []byte(content), filePerm); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	fmt.Printf("Generated: %s\n", path)
	return nil
}

// getModulePath reads the module path from go.mod file.
func getModulePath() (string, error) {
	data, err := os.ReadFile("go.mod")
	if err != nil {
		return "", err
	}

	for line := range strings.SplitSeq(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "module ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "module")), nil
		}
	}

	return "", fmt.Errorf("module directive not found in go.mod")
}

// PrintSummary prints a summary of what was generated.
func (g *Generator) PrintSummary(files *GeneratedFiles) {
	fmt.Println("\n✓ Successfully generated protocol!")
	fmt.Printf("\nProtocol: %s\n", g.Package)
	fmt.Printf("Contract: %s\n", g.Name)
	fmt.Printf("Output:   %s\n", g.OutputDir)
	fmt.Printf("Events:   %d\n", len(g.Events))

	fmt.Println("\nGenerated files:")
	fmt.Printf("  • %s\n", files.ProtocolFile)
	fmt.Printf("  • %s\n", files.WritersFile)
	fmt.Printf("  • %s\n", files.ReadmeFile)

	fmt.Println("\nHandled events:")
	for _, event := range g.events {
		fmt.Printf("  • %s  %s\n", event.CanonicalSignature(), event.Topic().Hex())
	}

	fmt.Println("\nNext steps:")
	fmt.Println("  1. Review the generated writers")
	fmt.Println("  2. Enable the protocol in config.yaml:")
	fmt.Printf("     networks:\n")
	fmt.Printf("       - namespace: mainnet\n")
	fmt.Printf("         protocols:\n")
	fmt.Printf("           - type: %s\n", g.Package)
	fmt.Printf("             sources:\n")
	fmt.Printf("               - contract: \"0xYourContractAddress\"\n")
	fmt.Printf("                 start: 0\n")
	fmt.Println("  3. Import it in your main.go:")
	fmt.Printf("     import _ \"%s\"\n", g.ImportPath)
	fmt.Println("\nFor more information, see the generated README.md")
}
