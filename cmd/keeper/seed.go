package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glyphkeeper/glyphkeeper/internal/knowledge"
	"github.com/glyphkeeper/glyphkeeper/internal/world"
)

var seedActor string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the database with the opening scenario",
	Long: `Seed creates the Greyharbor opening scenario: a handful of locations,
the player character, a few townsfolk, starting lore, keeper secrets, and
core rules. Safe to re-run; existing records are replaced by name.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedActor, "actor", "Rowan", "name of the player character to create")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := seedWorld(ctx, a.worldStore); err != nil {
		return err
	}
	if err := seedLore(ctx, a.worldEngine); err != nil {
		return err
	}
	if err := seedRules(ctx, a.rulesEngine); err != nil {
		return err
	}
	fmt.Println("Greyharbor is ready. Run `keeper play` to begin.")
	return nil
}

func seedWorld(ctx context.Context, store *world.Store) error {
	locations := []world.Location{
		{
			ID: "loc-quay", Name: "Greyharbor Quay",
			Description: "Salt-bleached planks over black water. Gulls argue on the pilings.",
			Tags:        []string{"outdoor", "crowded"},
		},
		{
			ID: "loc-lamplight", Name: "The Lamplight Inn",
			Description: "Low beams, peat smoke, and a fire that never quite warms the room.",
			Tags:        []string{"indoor"},
		},
		{
			ID: "loc-lighthouse", Name: "The Old Lighthouse",
			Description: "A spiral stair of cold stone. The lamp room above has gone dark.",
			Tags:        []string{"indoor", "dim", "danger"},
		},
	}
	for _, loc := range locations {
		if err := store.UpsertLocation(ctx, loc); err != nil {
			return err
		}
	}

	entities := []world.Entity{
		{
			ID: "ent-player", Name: seedActor, Kind: world.KindPlayer, LocationID: "loc-quay",
			Description: "A traveler with more questions than coin.",
			Stats:       `{"hp":12,"skills":{"stealth":2,"lore":3,"persuasion":1}}`,
		},
		{
			ID: "ent-maren", Name: "Maren", Kind: world.KindCharacter, LocationID: "loc-lamplight",
			Description: "The innkeeper. Polishes the same glass whenever the lighthouse comes up.",
			Stats:       `{"hp":9,"disposition":"guarded","skills":{"insight":3}}`,
		},
		{
			ID: "ent-tobias", Name: "Tobias", Kind: world.KindCharacter, LocationID: "loc-quay",
			Description: "A dockhand who watches the water more than the cargo.",
			Stats:       `{"hp":10,"disposition":"friendly"}`,
		},
		{
			ID: "ent-warden", Name: "The Drowned Warden", Kind: world.KindCharacter,
			LocationID: "loc-lighthouse", Hidden: true,
			Description: "What still climbs the lighthouse stairs at night.",
			Stats:       `{"hp":22,"secrets":{"bound_to":"the lamp"}}`,
		},
		{
			ID: "ent-journal", Name: "Waterlogged Journal", Kind: world.KindItem,
			LocationID: "loc-lighthouse",
			Description: "Its last legible entry is dated three weeks ago.",
		},
	}
	for _, e := range entities {
		if err := store.UpsertEntity(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func seedLore(ctx context.Context, engine *knowledge.Engine) error {
	lore := []string{
		"Greyharbor is a fishing town on a cold northern coast. Its lighthouse has guided ships for longer than any town record runs.",
		"Three weeks ago the lighthouse went dark. Two ships have wrecked on the shoals since.",
		"The lighthouse keeper, old Aldous, has not been seen in town since the light went out. The council pays anyone who asks not to.",
	}
	for _, l := range lore {
		if err := engine.InsertNote(ctx, knowledge.Note{Section: knowledge.SectionLore, Content: l}); err != nil {
			return err
		}
	}
	secrets := []string{
		"Aldous drowned himself from the lamp room gallery. What tends the lighthouse now wears his shape.",
		"Maren found Aldous's note a fortnight ago and burned it. She knows the light will not stay lit for the living.",
	}
	for _, s := range secrets {
		if err := engine.InsertNote(ctx, knowledge.Note{Section: knowledge.SectionSecret, Content: s}); err != nil {
			return err
		}
	}
	return nil
}

func seedRules(ctx context.Context, engine *knowledge.Engine) error {
	ruleText := []string{
		"Skill checks roll a d20, add the relevant skill modifier, and succeed on meeting or beating the difficulty.",
		"A natural 20 on a skill check always succeeds; a natural 1 always fails.",
		"Stealth checks are opposed by the observer's perception skill when a specific observer exists, otherwise by the location's alertness difficulty.",
		"When a character reaches 0 hp they are out of the scene; whether they are dead is the keeper's call.",
	}
	for _, r := range ruleText {
		if err := engine.InsertNote(ctx, knowledge.Note{Section: knowledge.SectionLore, Content: r}); err != nil {
			return err
		}
	}
	return nil
}
