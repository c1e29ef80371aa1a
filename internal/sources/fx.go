package sources

import (
	"github.com/vettedhq/vetted/internal/sources/adapters"
	"github.com/vettedhq/vetted/internal/sources/adapters/businessnames"
	"github.com/vettedhq/vetted/internal/sources/adapters/companyregistry"
	"github.com/vettedhq/vetted/internal/sources/adapters/courtrecords"
	"github.com/vettedhq/vetted/internal/sources/adapters/insolvency"
	"github.com/vettedhq/vetted/internal/sources/adapters/landtitle"
	"github.com/vettedhq/vetted/internal/sources/adapters/propertydata"
	"github.com/vettedhq/vetted/internal/sources/adapters/securedinterest"
	"github.com/vettedhq/vetted/internal/sources/adapters/trademarks"
	"github.com/vettedhq/vetted/internal/sources/adapters/unclaimedmoney"
	"github.com/vettedhq/vetted/internal/sources/client"
	"github.com/vettedhq/vetted/internal/sources/credentials"
	"github.com/vettedhq/vetted/internal/sources/pipeline"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newRegistry(c *client.Client, log *zap.Logger) *adapters.Registry {
	return adapters.NewRegistry(
		companyregistry.New(c),
		companyregistry.NewDirector(c),
		courtrecords.New(c, log),
		insolvency.New(c),
		securedinterest.New(c),
		landtitle.NewReference(c),
		landtitle.NewAddress(c),
		landtitle.NewOrganisation(c),
		landtitle.NewIndividual(c),
		propertydata.New(c),
		trademarks.New(c),
		businessnames.NewSearch(c),
		businessnames.NewSoleTrader(c),
		unclaimedmoney.New(c),
	)
}

var Module = fx.Module("sources",
	fx.Provide(
		credentials.New,
		client.New,
		newRegistry,
		pipeline.NewPoller,
		pipeline.NewPaginator,
	),
)
