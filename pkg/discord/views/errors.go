package views

import (
	"errors"
	"fmt"
	"time"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/dispatch"
	"github.com/small-frappuccino/tasbot/pkg/ledger"
	"github.com/small-frappuccino/tasbot/pkg/pix"
	"github.com/small-frappuccino/tasbot/pkg/storage"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

// Explain turns domain errors into messages the user can act on. Unknown
// errors pass through and end up as the router's generic reply.
func Explain(err error) error {
	if err == nil {
		return nil
	}
	var te *transport.TransitionError
	switch {
	case errors.As(err, &te):
		return core.NewCommandError(fmt.Sprintf("Este transporte está em **%s** e não pode ir para **%s**.", te.From.Label(), te.To.Label()), true)
	case errors.Is(err, storage.ErrNotFound):
		return core.NewCommandError("Transporte não encontrado.", true)
	case errors.Is(err, dispatch.ErrUnexpectedStatus):
		return core.NewCommandError("Este transporte não está mais nesta etapa.", true)
	case errors.Is(err, dispatch.ErrInvalidNick):
		return core.NewValidationError("nick", fmt.Sprintf("Nick inválido: use de %d a %d caracteres.", dispatch.NickMinLen, dispatch.NickMaxLen))
	case errors.Is(err, dispatch.ErrNotesTooLong):
		return core.NewValidationError("notes", fmt.Sprintf("Observações muito longas (máximo %d caracteres).", dispatch.NotesMaxLen))
	case errors.Is(err, dispatch.ErrIncomplete):
		return core.NewCommandError("Preencha nick, origem e valor antes de enviar o pedido.", true)
	case errors.Is(err, transport.ErrBelowMinimum):
		return core.NewValidationError("valor", "Valor abaixo do mínimo aceito.")
	case errors.Is(err, transport.ErrInvalidAmount):
		return core.NewValidationError("valor", "Valor inválido. Use apenas números, por exemplo 18500000 ou 18,5M.")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return core.NewCommandError("Saldo insuficiente para esta saída.", true)
	case errors.Is(err, ledger.ErrNonPositive):
		return core.NewValidationError("valor", "O valor deve ser maior que zero.")
	case errors.Is(err, pix.ErrMissingKey):
		return core.NewCommandError("A chave PIX não está configurada. Avise a staff.", true)
	}
	return err
}

// Duration renders d in pt-BR: "30 minutos", "1 hora", "7 dias".
func Duration(d time.Duration) string {
	plural := func(n int64, one, many string) string {
		if n == 1 {
			return fmt.Sprintf("%d %s", n, one)
		}
		return fmt.Sprintf("%d %s", n, many)
	}
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return plural(int64(d/(24*time.Hour)), "dia", "dias")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hora", "horas")
	case d >= time.Minute:
		return plural(int64(d/time.Minute), "minuto", "minutos")
	default:
		return plural(int64(d/time.Second), "segundo", "segundos")
	}
}
