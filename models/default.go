package models

import (
	"context"

	"github.com/eppcloud/epp_backend/utils"
)

// fetchById is the package-internal shorthand for primary-key lookups.
func fetchById[T any](ctx context.Context, id int, associations ...string) (*T, error) {
	return utils.FetchModel[T](ctx, id, associations...)
}

func listAll[T any](ctx context.Context, associations ...string) ([]*T, error) {
	return utils.FetchAllModels[T](ctx, associations...)
}
