package http

import (
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"caixa/internal/core"

	"github.com/shopspring/decimal"
)

var weekdaysPT = [...]string{"domingo", "segunda", "terça", "quarta", "quinta", "sexta", "sábado"}

// templateFuncs are available to every page template.
var templateFuncs = template.FuncMap{
	"brl":       core.FormatBRL,
	"fixed":     func(d decimal.Decimal) string { return d.StringFixed(core.AmountPlaces) },
	"kindLabel": func(k core.TransactionKind) string { return k.Label() },
	"kinds":     core.Kinds,
	"dateBR":    formatDateBR,
	"weekday":   func(d core.Date) string { return weekdaysPT[d.Weekday()] },
	"iso":       func(d core.Date) string { return d.String() },
	"dayURL":    dayURL,
	"formula":   formulaText,
	"derefID": func(id *int64) int64 {
		if id == nil {
			return 0
		}
		return *id
	},
}

// formatDateBR renders a date as dd/mm/aaaa.
func formatDateBR(d core.Date) string {
	return d.Format("02/01/2006")
}

func dayURL(d core.Date) string {
	return "/days/" + d.String()
}

// today returns the current business date in loc.
func today(now func() time.Time, loc *time.Location) core.Date {
	return core.DateOf(now().In(loc))
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// statusFor maps ledger errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, core.ErrInvalidRange), errors.Is(err, errMalformedDate):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, errUnknownCategory),
		errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrDescriptionTooLong),
		errors.Is(err, core.ErrCategoryExists),
		errors.Is(err, core.ErrCategoryKindMismatch),
		errors.Is(err, core.ErrCategoryInUse):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the Portuguese text shown for err. Internal errors are
// never echoed back.
func userMessage(err error) string {
	switch {
	case errors.Is(err, errMalformedDate):
		return errMalformedDate.Error()
	case errors.Is(err, core.ErrInvalidRange):
		return "Período inválido: a data inicial deve ser anterior à final"
	case errors.Is(err, errUnknownCategory):
		return "Categoria inexistente"
	case errors.Is(err, core.ErrNotFound):
		return "Registro não encontrado"
	case errors.Is(err, core.ErrInvalidAmount):
		return "Valor inválido"
	case errors.Is(err, core.ErrInvalidKind):
		return "Tipo de movimento inválido"
	case errors.Is(err, core.ErrEmptyName):
		return "Informe o nome"
	case errors.Is(err, core.ErrDescriptionTooLong):
		return "Descrição muito longa (máximo 200 caracteres)"
	case errors.Is(err, core.ErrCategoryExists):
		return "Categoria já existe"
	case errors.Is(err, core.ErrCategoryKindMismatch):
		return "A categoria não corresponde ao tipo de movimento"
	case errors.Is(err, core.ErrCategoryInUse):
		return "Categoria em uso"
	default:
		return "Erro interno, tente novamente"
	}
}

// categoryError reports a missing category on tx as a form error rather
// than a missing page.
func categoryError(tx core.Transaction, err error) error {
	if tx.CategoryID != nil && errors.Is(err, core.ErrNotFound) {
		return errUnknownCategory
	}
	return err
}

// formulaText spells out how the cash sale of a day was derived.
func formulaText(t core.Totals) string {
	return "Dinheiro = (" + core.FormatBRL(t.Outflows) + " saídas + " +
		core.FormatBRL(t.Closing) + " sobra) - (" +
		core.FormatBRL(t.Opening) + " início + " +
		core.FormatBRL(t.Inflows) + " suprimentos)"
}
