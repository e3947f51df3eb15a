package http

import (
	"net/http"

	"caixa/internal/core"
	applog "caixa/internal/log"
)

type reportPage struct {
	pageMeta
	Start  string
	End    string
	Report *core.RangeTotals
	Error  string
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := reportPage{
		pageMeta: s.meta(r, "Relatório"),
		Start:    q.Get("start"),
		End:      q.Get("end"),
	}

	params, err := ParseRangeParams(q, s.today())
	if err == nil {
		data.Start, data.End = params.Start.String(), params.End.String()
		var report core.RangeTotals
		report, err = s.ledger.SummarizeRange(r.Context(), params.Start, params.End)
		if err == nil {
			data.Report = &report
		}
	}
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.fail(w, r, err, applog.OpReport)
			return
		}
		data.Error = userMessage(err)
		s.render(w, r, status, "report.html", data)
		return
	}
	s.render(w, r, http.StatusOK, "report.html", data)
}
