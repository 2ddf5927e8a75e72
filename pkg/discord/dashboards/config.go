package dashboards

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/discord/views"
	"github.com/small-frappuccino/tasbot/pkg/files"
	"github.com/small-frappuccino/tasbot/pkg/log"
	"github.com/small-frappuccino/tasbot/pkg/theme"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

const (
	actionInc   = "inc"
	actionDec   = "dec"
	actionEdit  = "edit"
	actionEditM = "editm"

	inputPrice     = "price"
	inputSurcharge = "surcharge"

	priceStep  = 0.05
	priceFloor = 0.01
)

// exampleLoads are the silver amounts priced in the config table.
var exampleLoads = []int64{10_000_000, 50_000_000, 100_000_000, 350_000_000}

// PricingStore reads and replaces the tariff; files.ConfigManager implements it.
type PricingStore interface {
	Pricing() transport.Pricing
	UpdatePricing(transport.Pricing) error
}

// Config is the pricing dashboard.
type Config struct {
	store  PricingStore
	logger *slog.Logger
}

// NewConfig creates the pricing dashboard.
func NewConfig(store PricingStore) *Config {
	return &Config{store: store, logger: log.DiscordLogger().With("component", "config")}
}

// Register adds /enviar_config and the "cfg" buttons.
func (c *Config) Register(router *core.CommandRouter) {
	router.RegisterCommand(core.NewSimpleCommand("enviar_config", "Publica o painel de preços neste canal", nil, c.handleSend, core.PermissionAdmin))
	router.RegisterComponent(views.HandlerConfig, core.PermissionAdmin, c.handleComponent)
}

// Render builds the pricing embed and its buttons.
func (c *Config) Render(s files.Settings) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	p := c.store.Pricing()
	var table strings.Builder
	for _, silver := range exampleLoads {
		fmt.Fprintf(&table, "%s → %s | ⚡ %s\n",
			transport.ApproxSilver(silver),
			transport.FormatBRL(p.Fee(silver, transport.PriorityNormal)),
			transport.FormatBRL(p.Fee(silver, transport.PriorityHigh)))
	}
	embed := views.Notice(s, "⚙️ CONFIGURAÇÃO DE PREÇOS", "", theme.Config(),
		core.Field("💰 Preço por milhão", rate(p.PricePerMillion), true),
		core.Field("⚡ Prioridade alta", fmt.Sprintf("%s (+%.0f%%)", rate(p.RatePerMillion(transport.PriorityHigh)), p.HighSurcharge*100), true),
		core.Field("📦 Mínimo", transport.ApproxSilver(p.MinimumSilver), true),
		core.Field("📋 Exemplos", table.String(), false),
	)
	components := []discordgo.MessageComponent{core.Row(
		core.Button("+0,05", core.NewCustomID(views.HandlerConfig, actionInc), discordgo.SuccessButton, "➕"),
		core.Button("-0,05", core.NewCustomID(views.HandlerConfig, actionDec), discordgo.DangerButton, "➖"),
		core.Button("Editar", core.NewCustomID(views.HandlerConfig, actionEdit), discordgo.PrimaryButton, "✏️"),
	)}
	return embed, components
}

func rate(v float64) string {
	return "R$ " + strings.Replace(strconv.FormatFloat(v, 'f', 2, 64), ".", ",", 1)
}

func (c *Config) handleSend(ctx *core.Context) error {
	embed, components := c.Render(ctx.Settings)
	if _, err := ctx.Session.ChannelMessageSendComplex(ctx.ChannelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	}); err != nil {
		return err
	}
	return ctx.Success("Painel de configuração publicado.")
}

func (c *Config) handleComponent(ctx *core.Context, id core.CustomID) error {
	p := c.store.Pricing()
	switch id.Action {
	case actionInc:
		p.PricePerMillion = step(p.PricePerMillion, priceStep)
	case actionDec:
		p.PricePerMillion = step(p.PricePerMillion, -priceStep)
	case actionEdit:
		return ctx.Modal(core.NewCustomID(views.HandlerConfig, actionEditM), "Editar preços",
			core.TextInput(inputPrice, "Preço por milhão (R$)", rate(p.PricePerMillion), discordgo.TextInputShort, true, 1, 10),
			core.TextInput(inputSurcharge, "Acréscimo prioridade alta (%)", fmt.Sprintf("%.0f", p.HighSurcharge*100), discordgo.TextInputShort, false, 0, 6),
		)
	case actionEditM:
		values := core.ModalValues(ctx.Interaction)
		price, err := transport.ParseRate(values[inputPrice])
		if err != nil || price < priceFloor {
			return core.NewValidationError(inputPrice, fmt.Sprintf("Preço inválido: use um valor a partir de %s.", rate(priceFloor)))
		}
		p.PricePerMillion = price
		if raw := strings.TrimSpace(values[inputSurcharge]); raw != "" {
			pct, err := transport.ParseRate(raw)
			if err != nil || pct < 0 {
				return core.NewValidationError(inputSurcharge, "Acréscimo inválido: informe uma porcentagem, por exemplo 20.")
			}
			p.HighSurcharge = pct / 100
		}
	default:
		return core.NewCommandError("Ação desconhecida.", true)
	}

	if err := c.store.UpdatePricing(p); err != nil {
		c.logger.Warn("⚠️ Pricing update rejected", "error", err, "user", ctx.UserID)
		return core.NewCommandError("Não foi possível salvar o novo preço.", true)
	}
	c.logger.Info("💰 Pricing changed from dashboard", "user", ctx.UserID, "price_per_million", p.PricePerMillion)

	embed, components := c.Render(ctx.Settings)
	return ctx.Update(&discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}, Components: components})
}

// step moves v by delta, rounded to centavos and never below the floor.
func step(v, delta float64) float64 {
	return math.Max(priceFloor, math.Round((v+delta)*100)/100)
}
