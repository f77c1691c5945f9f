// Package idgen provides the snowflake node used for invoice and
// notification ids.
package idgen

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recurring/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("idgen",
	fx.Provide(RegisterSnowflake),
)

// RegisterSnowflake builds the node for NODE_ID. Every replica that writes
// invoices needs a distinct node id.
func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
