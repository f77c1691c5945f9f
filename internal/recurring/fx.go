package recurring

import (
	"github.com/smallbiznis/recurring/internal/recurring/domain"
	"github.com/smallbiznis/recurring/internal/recurring/generation"
	"github.com/smallbiznis/recurring/internal/recurring/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("recurring",
	fx.Provide(repository.New),
	fx.Provide(
		fx.Annotate(generation.New, fx.As(new(domain.Generator))),
	),
)
