package migrate

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/o2cms/cfmigrate/internal/content"
	"github.com/o2cms/cfmigrate/internal/destination"
	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/state"
)

// newSpaceOption is the select value that asks for a new space.
const newSpaceOption = ""

// Prompter asks the operator to choose what the settings leave open.
type Prompter interface {
	// ChooseSpace returns the chosen space id, or "" to create a new one.
	ChooseSpace(ctx context.Context, spaces []destination.Space) (string, error)
	SpaceName(ctx context.Context, def string) (string, error)
	ChooseSchemas(ctx context.Context, schemas []content.Schema) ([]string, error)
	ChooseStrategy(ctx context.Context, def state.AssetStrategy) (state.AssetStrategy, error)
}

// huhPrompter prompts on the terminal.
type huhPrompter struct{}

func (huhPrompter) ChooseSpace(ctx context.Context, spaces []destination.Space) (string, error) {
	options := make([]huh.Option[string], 0, len(spaces)+1)
	for _, s := range spaces {
		options = append(options, huh.NewOption(fmt.Sprintf("%s (%s)", s.Name, s.ID()), s.ID()))
	}
	options = append(options, huh.NewOption("Create a new space", newSpaceOption))

	var choice string
	field := huh.NewSelect[string]().
		Title("Destination space").
		Options(options...).
		Value(&choice)
	if err := ask(ctx, field); err != nil {
		return "", err
	}
	return choice, nil
}

func (huhPrompter) SpaceName(ctx context.Context, def string) (string, error) {
	name := def
	field := huh.NewInput().
		Title("Name of the new space").
		Value(&name).
		Validate(func(s string) error {
			if s == "" {
				return fmt.Errorf("name is required")
			}
			return nil
		})
	if err := ask(ctx, field); err != nil {
		return "", err
	}
	return name, nil
}

func (huhPrompter) ChooseSchemas(ctx context.Context, schemas []content.Schema) ([]string, error) {
	options := make([]huh.Option[string], 0, len(schemas))
	for i := range schemas {
		id := schemas[i].ID()
		options = append(options, huh.NewOption(fmt.Sprintf("%s (%s)", schemas[i].Name, id), id).Selected(true))
	}

	var chosen []string
	field := huh.NewMultiSelect[string]().
		Title("Content types to migrate").
		Options(options...).
		Filterable(true).
		Value(&chosen).
		Validate(func(ids []string) error {
			if len(ids) == 0 {
				return fmt.Errorf("select at least one content type")
			}
			return nil
		})
	if err := ask(ctx, field); err != nil {
		return nil, err
	}
	return chosen, nil
}

func (huhPrompter) ChooseStrategy(ctx context.Context, def state.AssetStrategy) (state.AssetStrategy, error) {
	choice := def
	field := huh.NewSelect[state.AssetStrategy]().
		Title("Assets to migrate").
		Options(
			huh.NewOption("Only assets linked from the selected entries", state.AssetsLinked),
			huh.NewOption("Every asset in the space", state.AssetsAll),
		).
		Value(&choice)
	if err := ask(ctx, field); err != nil {
		return "", err
	}
	return choice, nil
}

// ask shows a single field form. Aborting the form cancels the run.
func ask(ctx context.Context, field huh.Field) error {
	err := huh.NewForm(huh.NewGroup(field)).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return errors.New(err).
			Component("cli").
			Category(errors.CategoryCancellation).
			Build()
	}
	return err
}
