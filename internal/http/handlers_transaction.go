package http

import (
	"net/http"

	"caixa/internal/core"
	applog "caixa/internal/log"
)

type editPage struct {
	pageMeta
	Transaction core.Transaction
	Form        TransactionForm
	Date        string
	Categories  []core.Category
	Error       string
}

func (s *Server) handleEditTransactionForm(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		s.fail(w, r, err, applog.OpRead)
		return
	}
	tx, err := s.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, applog.OpRead)
		return
	}
	s.renderEdit(w, r, http.StatusOK, editPage{
		Transaction: tx,
		Form:        FormFromTransaction(tx),
		Date:        tx.Date.String(),
	})
}

func (s *Server) renderEdit(w http.ResponseWriter, r *http.Request, status int, data editPage) {
	cats, err := s.ledger.ListCategories(r.Context(), "")
	if err != nil {
		s.fail(w, r, err, applog.OpList)
		return
	}
	data.pageMeta = s.meta(r, "Editar movimento")
	data.Categories = cats
	s.render(w, r, status, "edit.html", data)
}

// handleUpdateTransaction rewrites a transaction. A changed date moves it to
// another day; both days are refreshed by the ledger.
func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		s.fail(w, r, err, applog.OpUpdate)
		return
	}
	existing, err := s.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, applog.OpUpdate)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Formato de requisição inválido").Write(w)
		return
	}

	form := ParseTransactionForm(p)
	rawDate := p.Get("date")
	date := existing.Date
	if rawDate != "" {
		date, err = core.ParseDate(rawDate)
		if err != nil {
			err = errMalformedDate
		}
	}

	var tx core.Transaction
	if err == nil {
		tx, err = form.Transaction(date)
	}
	if err == nil {
		tx.ID = id
		var updated core.Transaction
		updated, err = s.ledger.UpdateTransaction(r.Context(), tx)
		err = categoryError(tx, err)
		tx = updated
	}
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.fail(w, r, err, applog.OpUpdate)
			return
		}
		if rawDate == "" {
			rawDate = existing.Date.String()
		}
		s.renderEdit(w, r, status, editPage{
			Transaction: existing,
			Form:        form,
			Date:        rawDate,
			Error:       userMessage(err),
		})
		return
	}

	NewResponse().Redirect(dayURL(tx.Date) + "#movimentos").Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		s.fail(w, r, err, applog.OpDelete)
		return
	}
	tx, err := s.ledger.DeleteTransaction(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, applog.OpDelete)
		return
	}
	s.metrics.transactionsDeleted.Add(1)
	applog.FromContext(r.Context()).WithComponent(applog.ComponentLedger).InfoContext(r.Context(),
		"Transaction deleted", applog.NewFields().WithTransaction(tx).WithOperation(applog.OpDelete).ToSlice()...)
	NewResponse().Redirect(dayURL(tx.Date) + "#movimentos").Write(w)
}
