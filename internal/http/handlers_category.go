package http

import (
	"net/http"
	"strings"

	"caixa/internal/core"
	applog "caixa/internal/log"
)

type categoriesPage struct {
	pageMeta
	Categories []core.Category
	Name       string
	Kind       string
	Notice     string
	Error      string
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	data := categoriesPage{Kind: string(core.CashOutflow)}
	if r.URL.Query().Get("kept") != "" {
		data.Notice = "Categoria em uso por movimentos, não foi removida"
	}
	s.renderCategories(w, r, http.StatusOK, data)
}

func (s *Server) renderCategories(w http.ResponseWriter, r *http.Request, status int, data categoriesPage) {
	cats, err := s.ledger.ListCategories(r.Context(), "")
	if err != nil {
		s.fail(w, r, err, applog.OpList)
		return
	}
	data.pageMeta = s.meta(r, "Categorias")
	data.Categories = cats
	s.render(w, r, status, "categories.html", data)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Formato de requisição inválido").Write(w)
		return
	}
	name := p.Get("name")
	kind := strings.ToUpper(p.Get("kind"))

	c, err := s.ledger.CreateCategory(r.Context(), name, core.TransactionKind(kind))
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.fail(w, r, err, applog.OpCreate)
			return
		}
		s.renderCategories(w, r, status, categoriesPage{Name: name, Kind: kind, Error: userMessage(err)})
		return
	}
	applog.FromContext(r.Context()).WithComponent(applog.ComponentLedger).InfoContext(r.Context(),
		"Category created", applog.FieldCategoryID, c.ID, applog.FieldKind, string(c.Kind))
	NewResponse().Redirect("/categories").Write(w)
}

// handleDeleteCategory removes an unused category. One still referenced by
// transactions is kept and the page says so.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		s.fail(w, r, err, applog.OpDelete)
		return
	}
	deleted, err := s.ledger.DeleteCategory(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, applog.OpDelete)
		return
	}
	if !deleted {
		NewResponse().Redirect("/categories?kept=1").Write(w)
		return
	}
	NewResponse().Redirect("/categories").Write(w)
}
