package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"caixa/internal/auth"
	"caixa/internal/cache"
	"caixa/internal/core"
	applog "caixa/internal/log"
	"caixa/internal/middleware/ratelimit"
	"caixa/internal/middleware/security"
	"caixa/internal/middleware/trace"
	"caixa/internal/services"
	appweb "caixa/web"

	"github.com/shopspring/decimal"
)

// Ledger is the part of the ledger service the handlers use.
// *services.LedgerService implements it.
type Ledger interface {
	DayView(ctx context.Context, date core.Date) (services.DayView, error)
	RecordTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) (core.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	SetClosingBalance(ctx context.Context, date core.Date, amount decimal.Decimal) (core.LedgerDay, error)
	SetClosed(ctx context.Context, date core.Date, closed bool) (core.LedgerDay, error)
	SummarizeRange(ctx context.Context, start, end core.Date) (core.RangeTotals, error)
	CreateCategory(ctx context.Context, name string, kind core.TransactionKind) (core.Category, error)
	ListCategories(ctx context.Context, kind core.TransactionKind) ([]core.Category, error)
	DeleteCategory(ctx context.Context, id int64) (bool, error)
}

var _ Ledger = (*services.LedgerService)(nil)

// Options configures the server. Zero values select the defaults.
type Options struct {
	Logger *applog.Logger

	// SitePassword enables the shared password gate when non-empty.
	SitePassword           string
	SessionTTL             time.Duration
	LoginAttemptsPerMinute int

	// WritesPerMinute bounds POST requests per client.
	WritesPerMinute int

	// Location decides which calendar date "today" is.
	Location *time.Location

	// Ready backs /readyz; nil means always ready.
	Ready func(context.Context) error

	Now func() time.Time
}

type Server struct {
	http.Server
	ledger    Ledger
	templates *template.Template
	logger    *applog.Logger

	sessions     *auth.SessionStore
	loginLimiter *ratelimit.Limiter
	writeLimiter *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	caches       *cache.Manager

	metrics *appMetrics

	ready func(context.Context) error
	loc   *time.Location
	now   func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(addr string, ledger Ledger, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Handler: slog.Default().Handler(), Component: applog.ComponentHTTP})
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.WritesPerMinute <= 0 {
		opts.WritesPerMinute = ratelimit.DefaultConfig().RequestsPerMinute
	}

	logger := opts.Logger.WithComponent(applog.ComponentHTTP)
	detector := security.NewDetector()
	s := &Server{
		ledger:       ledger,
		logger:       logger,
		sessions:     auth.NewSessionStore(opts.SitePassword, opts.SessionTTL),
		loginLimiter: ratelimit.NewLimiter(ratelimit.LoginConfig(opts.LoginAttemptsPerMinute)),
		writeLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.WritesPerMinute}),
		detector:     detector,
		tracer:       trace.NewMiddleware(detector.ExtractClientIP, logger),
		caches:       cache.NewManager(),
		metrics:      &appMetrics{started: time.Now()},
		ready:        opts.Ready,
		loc:          opts.Location,
		now:          opts.Now,
	}

	s.caches.Register(s.sessions.Cache())
	s.caches.StartCleanup(10 * time.Minute)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Error("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("GET /site-login", page(s.handleLoginForm))
	mux.Handle("POST /site-login", page(s.handleLogin))
	mux.Handle("POST /site-logout", page(s.handleLogout))

	mux.Handle("GET /{$}", page(s.handleIndex))
	mux.Handle("GET /days/{date}", page(s.handleDay))
	mux.Handle("POST /days/{date}/transactions", page(s.handleCreateTransaction))
	mux.Handle("POST /days/{date}/balances", page(s.handleSetBalance))
	mux.Handle("POST /days/{date}/closed", page(s.handleSetClosed))

	mux.Handle("GET /transactions/{id}/edit", page(s.handleEditTransactionForm))
	mux.Handle("POST /transactions/{id}/edit", page(s.handleUpdateTransaction))
	mux.Handle("POST /transactions/{id}/delete", page(s.handleDeleteTransaction))

	mux.Handle("GET /report", page(s.handleReport))

	mux.Handle("GET /categories", page(s.handleCategories))
	mux.Handle("POST /categories", page(s.handleCreateCategory))
	mux.Handle("POST /categories/{id}/delete", page(s.handleDeleteCategory))

	mux.Handle("GET /api/days/{date}", page(s.handleAPIDay))
	mux.Handle("GET /api/report", page(s.handleAPIReport))

	var h http.Handler = mux
	h = s.requireSession(h)
	h = s.writeLimiter.Middleware(detector.ExtractClientIP, http.MethodPost)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = detector.Middleware(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// page marks a dynamic response as uncacheable.
func page(h http.HandlerFunc) http.Handler {
	return security.NoStore(h)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.loginLimiter.Stop()
		s.writeLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// render executes name into a buffer first, so a template failure becomes
// a clean 500 instead of a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		InternalServerError("templates not loaded").Write(w)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.NewStructuredLogger(applog.FromContext(r.Context())).LogError(r.Context(),
			"Template execution failed", err, applog.ComponentTemplate, applog.OpRender,
			applog.LogFields{applog.FieldTemplate: name})
		InternalServerError("Erro ao montar a página").Write(w)
		return
	}
	NewResponse().Status(status).BodyHTML(buf.String()).Write(w)
}

// fail answers an HTML request with the status and message mapped from
// err. Unexpected errors are logged; expected ones are not.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, op string) {
	status := statusFor(err)
	s.logFailure(r, err, status, op)
	ErrorResponse(status, userMessage(err)).Write(w)
}

// failJSON is fail for the /api routes.
func (s *Server) failJSON(w http.ResponseWriter, r *http.Request, err error, op string) {
	status := statusFor(err)
	s.logFailure(r, err, status, op)
	JSONError(status, userMessage(err)).Write(w)
}

func (s *Server) logFailure(r *http.Request, err error, status int, op string) {
	if status < http.StatusInternalServerError {
		return
	}
	applog.NewStructuredLogger(applog.FromContext(r.Context())).LogError(r.Context(),
		"Request failed", err, applog.ComponentLedger, op,
		applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer()))
}

func (s *Server) today() core.Date {
	return today(s.now, s.loc)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	NewResponse().Redirect(dayURL(s.today())).Write(w)
}
