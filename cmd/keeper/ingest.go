package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glyphkeeper/glyphkeeper/internal/ingest"
	"github.com/glyphkeeper/glyphkeeper/internal/knowledge"
)

var (
	ingestRoot    string
	ingestSection string
	ingestDomain  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Load a content pack (lore, secrets, or rulebook text) into the knowledge store",
	Long: `Ingest reads .md and .txt files under the given path (relative to --root)
and stores each paragraph as a retrievable note. Files under a directory
named "secrets" always land in the secret section.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestRoot, "root", ".", "content root; ingested paths may not escape it")
	ingestCmd.Flags().StringVar(&ingestSection, "section", "lore", "target section: lore, episodic, or secret")
	ingestCmd.Flags().StringVar(&ingestDomain, "domain", "world", "knowledge domain: world or rules")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var section knowledge.Section
	switch ingestSection {
	case "lore":
		section = knowledge.SectionLore
	case "episodic":
		section = knowledge.SectionEpisodic
	case "secret":
		section = knowledge.SectionSecret
	default:
		return fmt.Errorf("unknown section %q", ingestSection)
	}

	engine := a.worldEngine
	switch ingestDomain {
	case "world":
	case "rules":
		engine = a.rulesEngine
	default:
		return fmt.Errorf("unknown domain %q", ingestDomain)
	}

	root, err := ingest.ResolveRoot(ingestRoot)
	if err != nil {
		return err
	}
	ing := ingest.NewIngestor(engine, root, a.log)

	// IngestDir also accepts a single file path; the walk visits just it.
	n, err := ing.IngestDir(ctx, args[0], section)
	if err != nil {
		return err
	}
	fmt.Printf("ingested %d notes into %s/%s\n", n, ingestDomain, ingestSection)
	return nil
}
