package migrate

import (
	"context"

	"github.com/o2cms/cfmigrate/internal/conf"
	"github.com/o2cms/cfmigrate/internal/destination"
	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/logger"
	"github.com/o2cms/cfmigrate/internal/state"
)

const newSpaceDescription = "Migrated from Contentful by cfmigrate"

// spaceAPI is the part of the destination client used to pick a space.
type spaceAPI interface {
	ListSpaces(ctx context.Context) ([]destination.Space, error)
	CreateSpace(ctx context.Context, name, description string) (destination.Space, error)
	ResolveEnvironment(ctx context.Context, spaceID, name string) (string, error)
}

// bindDestination returns dst scoped to the space and environment of this
// migration. A state that already names a destination keeps it.
func bindDestination(ctx context.Context, settings *conf.Settings, dst *destination.Client, store *state.Store, p Prompter) (*destination.Client, error) {
	d, err := resolveDestination(ctx, settings, dst, store, p)
	if err != nil {
		return nil, err
	}
	return dst.Bind(d.SpaceID, d.EnvironmentID), nil
}

func resolveDestination(ctx context.Context, settings *conf.Settings, api spaceAPI, store *state.Store, p Prompter) (state.Destination, error) {
	log := GetLogger()

	if d, ok := store.Destination(); ok {
		if want := settings.Destination.SpaceID; want != "" && want != d.SpaceID {
			return state.Destination{}, errors.Newf("state belongs to destination space %s, not %s; use --reset to start over", d.SpaceID, want).
				Component("cli").
				Category(errors.CategoryState).
				Build()
		}
		log.Info("resuming into saved destination",
			logger.String("space_id", d.SpaceID),
			logger.String("environment_id", d.EnvironmentID))
		return d, nil
	}

	d := state.Destination{SpaceID: settings.Destination.SpaceID}
	if d.SpaceID == "" {
		space, err := chooseSpace(ctx, settings, api, p)
		if err != nil {
			return state.Destination{}, err
		}
		d.SpaceID, d.SpaceName = space.ID(), space.Name
	}

	envID, err := api.ResolveEnvironment(ctx, d.SpaceID, settings.Destination.Environment)
	if err != nil {
		return state.Destination{}, err
	}
	d.EnvironmentID = envID

	store.SetDestination(d)
	log.Info("destination bound",
		logger.String("space_id", d.SpaceID),
		logger.String("environment_id", d.EnvironmentID))
	return d, nil
}

// chooseSpace picks an existing space or creates one. Without a prompter
// the first listed space is used.
func chooseSpace(ctx context.Context, settings *conf.Settings, api spaceAPI, p Prompter) (destination.Space, error) {
	spaces, err := api.ListSpaces(ctx)
	if err != nil {
		return destination.Space{}, err
	}

	name := settings.Destination.SpaceName
	if p == nil {
		if len(spaces) > 0 {
			GetLogger().Info("no destination space configured, using the first one",
				logger.String("space_id", spaces[0].ID()),
				logger.String("space_name", spaces[0].Name))
			return spaces[0], nil
		}
	} else {
		id, err := p.ChooseSpace(ctx, spaces)
		if err != nil {
			return destination.Space{}, err
		}
		for _, s := range spaces {
			if id != newSpaceOption && s.ID() == id {
				return s, nil
			}
		}
		if name, err = p.SpaceName(ctx, name); err != nil {
			return destination.Space{}, err
		}
	}

	space, err := api.CreateSpace(ctx, name, newSpaceDescription)
	if err != nil {
		return destination.Space{}, err
	}
	GetLogger().Info("destination space created",
		logger.String("space_id", space.ID()),
		logger.String("space_name", space.Name))
	return space, nil
}
