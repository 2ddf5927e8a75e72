package theme

import (
	"fmt"
	"sync"
)

// Color is the int value used by discordgo.MessageEmbed.Color
type Color = int

// Theme holds all color roles used across the bot's embeds.
// If a feature needs a very specific color, add it here so themes can override it explicitly.
type Theme struct {
	// Human-friendly name for the theme (unique within the registry).
	Name string

	// Core roles
	Primary Color
	Accent  Color
	Info    Color
	Success Color
	Warning Color
	Loading Color
	Error   Color
	Danger  Color // When we want a stronger red than Error
	Muted   Color

	// Feature roles
	Ticket    Color // ticket welcome and wizard
	Payment   Color // PIX instructions and pending proofs
	Staff     Color // staff panel notices
	Finance   Color // ledger dashboard and log
	Queue     Color // queue board
	Report    Color // statistics dashboard
	Config    Color // pricing dashboard
	Delivered Color // public history posts
}

// Clone returns a copy of the Theme.
func (t *Theme) Clone() *Theme {
	cp := *t
	return &cp
}

// ensureDefaults fills zero-valued fields with fallbacks derived from other roles.
func (t *Theme) ensureDefaults() {
	if t.Primary == 0 {
		t.Primary = 0x3498DB
	}
	if t.Accent == 0 {
		t.Accent = t.Primary
	}
	if t.Info == 0 {
		t.Info = 0x3498DB
	}
	if t.Success == 0 {
		t.Success = 0x2ECC71
	}
	if t.Warning == 0 {
		t.Warning = 0xF39C12
	}
	if t.Loading == 0 {
		t.Loading = 0xFEE75C
	}
	if t.Error == 0 {
		t.Error = 0xE74C3C
	}
	if t.Danger == 0 {
		t.Danger = 0xC0392B
	}
	if t.Muted == 0 {
		t.Muted = 0x95A5A6
	}

	if t.Ticket == 0 {
		t.Ticket = t.Primary
	}
	if t.Payment == 0 {
		t.Payment = t.Warning
	}
	if t.Staff == 0 {
		t.Staff = 0x9B59B6
	}
	if t.Finance == 0 {
		t.Finance = 0xF1C40F
	}
	if t.Queue == 0 {
		t.Queue = t.Primary
	}
	if t.Report == 0 {
		t.Report = t.Info
	}
	if t.Config == 0 {
		t.Config = 0x1ABC9C
	}
	if t.Delivered == 0 {
		t.Delivered = 0x27AE60
	}
}

// defaultTheme returns the built-in T.A.S Mania palette.
func defaultTheme() *Theme {
	th := &Theme{Name: "default"}
	th.ensureDefaults()
	return th
}

// Escuro is a muted palette for servers with dark branding. Select it with `theme: escuro`.
var Escuro = &Theme{
	Name:      "escuro",
	Primary:   0x2C3E50,
	Info:      0x34495E,
	Success:   0x1E8449,
	Warning:   0xB9770E,
	Error:     0x922B21,
	Muted:     0x566573,
	Staff:     0x6C3483,
	Finance:   0xB7950B,
	Config:    0x117A65,
	Delivered: 0x196F3D,
}

func init() {
	if err := Register(Escuro); err != nil {
		panic(err)
	}
}

var (
	mu        sync.RWMutex
	registry  = map[string]*Theme{}
	currentTh = defaultTheme()
)

// Register adds a theme to the registry. It returns an error if the name is empty or already registered.
func Register(t *Theme) error {
	if t == nil {
		return fmt.Errorf("theme: cannot register nil theme")
	}
	if t.Name == "" {
		return fmt.Errorf("theme: name is required")
	}
	cp := t.Clone()
	cp.ensureDefaults()

	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[cp.Name]; exists {
		return fmt.Errorf("theme: theme %q already registered", cp.Name)
	}
	registry[cp.Name] = cp
	return nil
}

// SetCurrent switches the active theme by name. An empty name restores the default.
func SetCurrent(name string) error {
	mu.Lock()
	defer mu.Unlock()
	if name == "" || name == "default" {
		currentTh = defaultTheme()
		return nil
	}
	th, ok := registry[name]
	if !ok {
		return fmt.Errorf("theme: theme %q not found", name)
	}
	currentTh = th.Clone()
	currentTh.ensureDefaults()
	return nil
}

// Current returns a copy of the current theme.
func Current() *Theme {
	mu.RLock()
	defer mu.RUnlock()
	return currentTh.Clone()
}

func Primary() Color   { return Current().Primary }
func Info() Color      { return Current().Info }
func Success() Color   { return Current().Success }
func Warning() Color   { return Current().Warning }
func Loading() Color   { return Current().Loading }
func Error() Color     { return Current().Error }
func Danger() Color    { return Current().Danger }
func Muted() Color     { return Current().Muted }
func Ticket() Color    { return Current().Ticket }
func Payment() Color   { return Current().Payment }
func Staff() Color     { return Current().Staff }
func Finance() Color   { return Current().Finance }
func Queue() Color     { return Current().Queue }
func Report() Color    { return Current().Report }
func Config() Color    { return Current().Config }
func Delivered() Color { return Current().Delivered }
