// Package translate applies a text transform to cast and crew credits.
//
// Credits are translated in positional batches: every value of one field is
// sent in a single request and the response must return the same number of
// strings in the same order. A short or long response is a transform failure
// because the positions can no longer be trusted.
package translate

import (
	"context"
	"fmt"

	"tmdbsync/internal/media"
	"tmdbsync/internal/services"
)

// Transformer converts a batch of strings, preserving order and length.
type Transformer interface {
	Transform(ctx context.Context, texts []string) ([]string, error)
}

// Cast translates [characters..., names...] and returns updated copies.
func Cast(ctx context.Context, t Transformer, cast []media.Credit) ([]media.Credit, error) {
	if len(cast) == 0 {
		return cast, nil
	}
	n := len(cast)
	batch := make([]string, 0, 2*n)
	for _, c := range cast {
		batch = append(batch, c.Character)
	}
	for _, c := range cast {
		batch = append(batch, c.Name)
	}
	out, err := run(ctx, t, "cast", batch)
	if err != nil {
		return nil, err
	}
	result := make([]media.Credit, n)
	for i, c := range cast {
		c.Character = out[i]
		c.Name = out[i+n]
		result[i] = c
	}
	return result, nil
}

// Crew translates [departments..., jobs..., names...] and returns updated
// copies. Department and Job keep their provider values; the translations land
// in the label fields.
func Crew(ctx context.Context, t Transformer, crew []media.Credit) ([]media.Credit, error) {
	if len(crew) == 0 {
		return crew, nil
	}
	n := len(crew)
	batch := make([]string, 0, 3*n)
	for _, c := range crew {
		batch = append(batch, c.Department)
	}
	for _, c := range crew {
		batch = append(batch, c.Job)
	}
	for _, c := range crew {
		batch = append(batch, c.Name)
	}
	out, err := run(ctx, t, "crew", batch)
	if err != nil {
		return nil, err
	}
	result := make([]media.Credit, n)
	for i, c := range crew {
		c.DepartmentLabel = out[i]
		c.JobLabel = out[i+n]
		c.Name = out[i+2*n]
		result[i] = c
	}
	return result, nil
}

func run(ctx context.Context, t Transformer, field string, batch []string) ([]string, error) {
	out, err := t.Transform(ctx, batch)
	if err != nil {
		return nil, services.Wrap(services.ErrTransform, "translate", field, "transform request failed", err)
	}
	if len(out) != len(batch) {
		return nil, services.Wrap(services.ErrTransform, "translate", field,
			fmt.Sprintf("expected %d strings, got %d", len(batch), len(out)), nil)
	}
	return out, nil
}
