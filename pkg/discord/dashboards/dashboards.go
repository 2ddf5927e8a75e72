package dashboards

import (
	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/dispatch"
	"github.com/small-frappuccino/tasbot/pkg/ledger"
)

// Set groups the slash-command dashboards.
type Set struct {
	Reports *Reports
	Config  *Config
	Finance *Finance
	History *History
}

// New builds every dashboard.
func New(session *discordgo.Session, service *dispatch.Service, l *ledger.Ledger, pricing PricingStore) *Set {
	return &Set{
		Reports: NewReports(session, service),
		Config:  NewConfig(pricing),
		Finance: NewFinance(session, l),
		History: NewHistory(service),
	}
}

// Register adds all dashboard commands and buttons to router.
func (d *Set) Register(router *core.CommandRouter) {
	d.Reports.Register(router)
	d.Config.Register(router)
	d.Finance.Register(router)
	d.History.Register(router)
}
