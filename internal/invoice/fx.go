package invoice

import (
	"github.com/smallbiznis/recurring/internal/invoice/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice",
	fx.Provide(repository.New),
)
