package report

import (
	"github.com/bwmarrin/snowflake"
	deltadomain "github.com/vettedhq/vetted/internal/delta/domain"
	reportdomain "github.com/vettedhq/vetted/internal/report/domain"
	"github.com/vettedhq/vetted/internal/report/service"
	"go.uber.org/fx"
)

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

var Module = fx.Module("report",
	fx.Provide(
		newSnowflakeNode,
		service.New,
		func(s *service.ReportService) reportdomain.Service { return s },
		func(s *service.ReportService) deltadomain.Service { return s },
	),
)
