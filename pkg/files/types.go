package files

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"

	"github.com/small-frappuccino/tasbot/pkg/transport"
)

// ## Settings Types

// Settings is the runtime configuration kept in settings.yaml.
type Settings struct {
	Pricing      PricingSettings  `yaml:"pricing"`
	Origins      []string         `yaml:"origins"`
	Destination  string           `yaml:"destination"`
	Channels     ChannelSettings  `yaml:"channels"`
	Timeouts     TimeoutSettings  `yaml:"timeouts"`
	PIX          PIXSettings      `yaml:"pix"`
	Branding     BrandingSettings `yaml:"branding"`
	QueueRefresh string           `yaml:"queue_refresh"`
}

// PricingSettings mirrors transport.Pricing.
type PricingSettings struct {
	PricePerMillion       float64 `yaml:"price_per_million"`
	HighPrioritySurcharge float64 `yaml:"high_priority_surcharge"`
	MinimumSilver         int64   `yaml:"minimum_silver"`
}

// ChannelSettings are channel names looked up in the guild.
type ChannelSettings struct {
	PaymentReview  string `yaml:"payment_review"`
	StaffPanel     string `yaml:"staff_panel"`
	Queue          string `yaml:"queue"`
	PublicHistory  string `yaml:"public_history"`
	Finance        string `yaml:"finance"`
	Reports        string `yaml:"reports"`
	Config         string `yaml:"config"`
	TicketCategory string `yaml:"ticket_category"`
}

// TimeoutSettings are str2duration strings such as "30m" or "7d".
type TimeoutSettings struct {
	Payment          string `yaml:"payment"`
	Deposit          string `yaml:"deposit"`
	TicketAutoDelete string `yaml:"ticket_auto_delete"`
}

// PIXSettings describe the receiving account. PIX_KEY, PIX_MERCHANT_NAME and
// PIX_MERCHANT_CITY override them at runtime without being written back.
type PIXSettings struct {
	Key          string `yaml:"key"`
	MerchantName string `yaml:"merchant_name"`
	MerchantCity string `yaml:"merchant_city"`
}

// BrandingSettings tune embeds and staff detection.
type BrandingSettings struct {
	Footer                string   `yaml:"footer"`
	Theme                 string   `yaml:"theme,omitempty"`
	StaffRoleNamePrefixes []string `yaml:"staff_role_name_prefixes"`
}

// DefaultSettings returns the tariff and layout the bot ships with.
func DefaultSettings() Settings {
	return Settings{
		Pricing: PricingSettings{
			PricePerMillion:       transport.DefaultPricePerMillion,
			HighPrioritySurcharge: transport.DefaultHighSurcharge,
			MinimumSilver:         transport.DefaultMinimumSilver,
		},
		Origins:     []string{"Bridgewatch", "Martlock", "Lymhurst", "Fort Sterling", "Thetford", "Brecilien"},
		Destination: transport.DefaultDestination,
		Channels: ChannelSettings{
			PaymentReview:  "analise-pagamentos",
			StaffPanel:     "painel-staff",
			Queue:          "fila-transportes",
			PublicHistory:  "historico-tas",
			Finance:        "financeiro",
			Reports:        "relatorios",
			Config:         "configuracoes",
			TicketCategory: "🎫 TICKETS",
		},
		Timeouts: TimeoutSettings{
			Payment:          "30m",
			Deposit:          "1h",
			TicketAutoDelete: "7d",
		},
		PIX: PIXSettings{
			MerchantName: "TAS MANIA",
			MerchantCity: "SAO PAULO",
		},
		Branding: BrandingSettings{
			Footer:                "T.A.S Mania • Transporte seguro",
			StaffRoleNamePrefixes: []string{"💼", "👑"},
		},
		QueueRefresh: "30s",
	}
}

// TransportPricing converts the pricing block.
func (s Settings) TransportPricing() transport.Pricing {
	return transport.Pricing{
		PricePerMillion: s.Pricing.PricePerMillion,
		HighSurcharge:   s.Pricing.HighPrioritySurcharge,
		MinimumSilver:   s.Pricing.MinimumSilver,
	}
}

// Durations is the parsed timeout block.
type Durations struct {
	Payment          time.Duration
	Deposit          time.Duration
	TicketAutoDelete time.Duration
	QueueRefresh     time.Duration
}

// Durations parses every duration string.
func (s Settings) Durations() (Durations, error) {
	var d Durations
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeouts.payment", s.Timeouts.Payment, &d.Payment},
		{"timeouts.deposit", s.Timeouts.Deposit, &d.Deposit},
		{"timeouts.ticket_auto_delete", s.Timeouts.TicketAutoDelete, &d.TicketAutoDelete},
		{"queue_refresh", s.QueueRefresh, &d.QueueRefresh},
	}
	for _, f := range fields {
		v, err := str2duration.ParseDuration(strings.TrimSpace(f.raw))
		if err != nil {
			return Durations{}, NewValidationError(f.name, f.raw, err.Error())
		}
		if v <= 0 {
			return Durations{}, NewValidationError(f.name, f.raw, "must be positive")
		}
		*f.dst = v
	}
	return d, nil
}

// HasOrigin reports whether name is a configured pickup city (case-insensitive).
func (s Settings) HasOrigin(name string) bool {
	return slices.ContainsFunc(s.Origins, func(o string) bool { return strings.EqualFold(o, strings.TrimSpace(name)) })
}

// Validate rejects settings the bot cannot run with.
func (s Settings) Validate() error {
	if err := s.TransportPricing().Validate(); err != nil {
		return NewValidationError("pricing", s.Pricing, err.Error())
	}
	if len(s.Origins) == 0 {
		return NewValidationError("origins", s.Origins, "at least one origin is required")
	}
	if len(s.Origins) > 25 {
		return NewValidationError("origins", len(s.Origins), "a select menu holds at most 25 origins")
	}
	if strings.TrimSpace(s.Destination) == "" {
		return NewValidationError("destination", s.Destination, "must not be empty")
	}
	if _, err := s.Durations(); err != nil {
		return err
	}
	return nil
}

func (s Settings) clone() Settings {
	out := s
	out.Origins = slices.Clone(s.Origins)
	out.Branding.StaffRoleNamePrefixes = slices.Clone(s.Branding.StaffRoleNamePrefixes)
	return out
}

// fillDefaults restores defaults for values the file sets to blank.
func (s *Settings) fillDefaults() {
	def := DefaultSettings()
	if s.Pricing == (PricingSettings{}) {
		s.Pricing = def.Pricing
	}
	if len(s.Origins) == 0 {
		s.Origins = def.Origins
	}
	if s.Destination == "" {
		s.Destination = def.Destination
	}
	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = v
		}
	}
	fill(&s.Channels.PaymentReview, def.Channels.PaymentReview)
	fill(&s.Channels.StaffPanel, def.Channels.StaffPanel)
	fill(&s.Channels.Queue, def.Channels.Queue)
	fill(&s.Channels.PublicHistory, def.Channels.PublicHistory)
	fill(&s.Channels.Finance, def.Channels.Finance)
	fill(&s.Channels.Reports, def.Channels.Reports)
	fill(&s.Channels.Config, def.Channels.Config)
	fill(&s.Channels.TicketCategory, def.Channels.TicketCategory)
	fill(&s.Timeouts.Payment, def.Timeouts.Payment)
	fill(&s.Timeouts.Deposit, def.Timeouts.Deposit)
	fill(&s.Timeouts.TicketAutoDelete, def.Timeouts.TicketAutoDelete)
	fill(&s.PIX.MerchantName, def.PIX.MerchantName)
	fill(&s.PIX.MerchantCity, def.PIX.MerchantCity)
	fill(&s.Branding.Footer, def.Branding.Footer)
	fill(&s.QueueRefresh, def.QueueRefresh)
	if len(s.Branding.StaffRoleNamePrefixes) == 0 {
		s.Branding.StaffRoleNamePrefixes = def.Branding.StaffRoleNamePrefixes
	}
}

// ## Error Types

// ValidationError represents a validation error with field context.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field string, value any, message string) ValidationError {
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Operation string
	Path      string
	Cause     error
}

func (e ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config %s failed for %s: %v", e.Operation, e.Path, e.Cause)
	}
	return fmt.Sprintf("config %s failed for %s", e.Operation, e.Path)
}

func (e ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(operation, path string, cause error) ConfigError {
	return ConfigError{
		Operation: operation,
		Path:      path,
		Cause:     cause,
	}
}
