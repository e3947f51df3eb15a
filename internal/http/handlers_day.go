package http

import (
	"net/http"

	"caixa/internal/core"
	applog "caixa/internal/log"
	"caixa/internal/services"
)

// pageMeta is shared by every page layout.
type pageMeta struct {
	Title    string
	Gated    bool
	LoggedIn bool
	Today    core.Date
}

type dayPage struct {
	pageMeta
	View          services.DayView
	CategoryNames map[int64]string
	Form          TransactionForm
	Closing       string
	Error         string
}

func newDayPage(meta pageMeta, view services.DayView) dayPage {
	names := make(map[int64]string, len(view.Categories))
	for _, c := range view.Categories {
		names[c.ID] = c.Name
	}
	return dayPage{
		pageMeta:      meta,
		View:          view,
		CategoryNames: names,
		Form:          TransactionForm{Kind: string(core.CardSale)},
		Closing:       view.Day.ClosingBalance.StringFixed(core.AmountPlaces),
	}
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	date, err := PathDate(r)
	if err != nil {
		s.fail(w, r, err, applog.OpRead)
		return
	}
	s.renderDay(w, r, date, http.StatusOK, func(*dayPage) {})
}

// renderDay loads date and renders the day page. adjust lets a failed form
// post put back the user's input and the error.
func (s *Server) renderDay(w http.ResponseWriter, r *http.Request, date core.Date, status int, adjust func(*dayPage)) {
	view, err := s.ledger.DayView(r.Context(), date)
	if err != nil {
		s.fail(w, r, err, applog.OpRead)
		return
	}
	data := newDayPage(s.meta(r, formatDateBR(date)), view)
	adjust(&data)
	s.render(w, r, status, "day.html", data)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	date, err := PathDate(r)
	if err != nil {
		s.fail(w, r, err, applog.OpCreate)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Formato de requisição inválido").Write(w)
		return
	}

	form := ParseTransactionForm(p)
	tx, err := form.Transaction(date)
	if err == nil {
		tx, err = s.recordTransaction(r, tx)
	}
	if err != nil {
		if p.IsJSON() {
			s.failJSON(w, r, err, applog.OpCreate)
			return
		}
		if statusFor(err) != http.StatusUnprocessableEntity {
			s.fail(w, r, err, applog.OpCreate)
			return
		}
		s.renderDay(w, r, date, http.StatusUnprocessableEntity, func(d *dayPage) {
			d.Form = form
			d.Error = userMessage(err)
		})
		return
	}

	if p.IsJSON() {
		NewResponse().Status(http.StatusCreated).JSON(newTransactionJSON(tx, nil)).Write(w)
		return
	}
	NewResponse().Redirect(dayURL(date) + "#movimentos").Write(w)
}

// recordTransaction saves tx, turning a missing category into a form error.
func (s *Server) recordTransaction(r *http.Request, tx core.Transaction) (core.Transaction, error) {
	saved, err := s.ledger.RecordTransaction(r.Context(), tx)
	if err != nil {
		return core.Transaction{}, categoryError(tx, err)
	}
	s.metrics.transactionsRecorded.Add(1)
	applog.NewStructuredLogger(applog.FromContext(r.Context())).LogTransactionRecorded(r.Context(), saved)
	return saved, nil
}

func (s *Server) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	date, err := PathDate(r)
	if err != nil {
		s.fail(w, r, err, applog.OpUpdate)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Formato de requisição inválido").Write(w)
		return
	}

	raw := p.Get("closing")
	amount, err := core.ParseBalance(raw)
	if err == nil {
		_, err = s.ledger.SetClosingBalance(r.Context(), date, amount)
	}
	if err != nil {
		if statusFor(err) != http.StatusUnprocessableEntity {
			s.fail(w, r, err, applog.OpUpdate)
			return
		}
		s.renderDay(w, r, date, http.StatusUnprocessableEntity, func(d *dayPage) {
			d.Closing = raw
			d.Error = "Saldo final inválido"
		})
		return
	}
	NewResponse().Redirect(dayURL(date)).Write(w)
}

func (s *Server) handleSetClosed(w http.ResponseWriter, r *http.Request) {
	date, err := PathDate(r)
	if err != nil {
		s.fail(w, r, err, applog.OpUpdate)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Formato de requisição inválido").Write(w)
		return
	}

	if _, err := s.ledger.SetClosed(r.Context(), date, parseBool(p.Get("closed"))); err != nil {
		s.fail(w, r, err, applog.OpUpdate)
		return
	}
	NewResponse().Redirect(dayURL(date)).Write(w)
}
