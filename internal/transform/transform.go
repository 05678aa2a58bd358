// Package transform implements the transform chain (C7): composable
// stages that rewrite a schema once up front and every entity as it
// streams through the pipeline.
package transform

import (
	"github.com/tobilg/citystream/internal/citymodel"
	"github.com/tobilg/citystream/internal/schema"
)

// Transform is one stage of the chain. TransformSchema runs once, before
// any entity is processed, and must be pure with respect to the schema it
// is given (the pipeline runtime folds every stage's result into the
// next). TransformEntity may fan one entity out into several (flatten) or
// drop it entirely (an empty, nil-error result).
type Transform interface {
	TransformSchema(s *schema.Schema) (*schema.Schema, error)
	TransformEntity(e *citymodel.Entity) ([]*citymodel.Entity, error)
}
