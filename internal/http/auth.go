package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"caixa/internal/auth"
	applog "caixa/internal/log"
)

type loginPage struct {
	pageMeta
	Next  string
	Error string
}

// requireSession redirects browsers without a live session to the login
// page. Static assets, probes and the login page itself stay reachable.
func (s *Server) requireSession(next http.Handler) http.Handler {
	if !s.sessions.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) || s.authenticated(r) {
			next.ServeHTTP(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") {
			JSONError(http.StatusUnauthorized, "Sessão expirada, entre novamente").Write(w)
			return
		}
		target := "/site-login"
		if r.Method == http.MethodGet && r.URL.Path != "/" {
			target += "?next=" + url.QueryEscape(r.URL.RequestURI())
		}
		NewResponse().Redirect(target).Write(w)
	})
}

func isPublicPath(path string) bool {
	switch path {
	case "/site-login", "/healthz", "/readyz", "/metrics":
		return true
	}
	return strings.HasPrefix(path, "/static/")
}

func (s *Server) authenticated(r *http.Request) bool {
	c, err := r.Cookie(auth.CookieName)
	return err == nil && s.sessions.Valid(c.Value)
}

// meta is the layout data of every page.
func (s *Server) meta(r *http.Request, title string) pageMeta {
	return pageMeta{
		Title:    title,
		Gated:    s.sessions.Enabled(),
		Today:    s.today(),
		LoggedIn: s.sessions.Enabled() && s.authenticated(r),
	}
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Enabled() || s.authenticated(r) {
		NewResponse().Redirect("/").Write(w)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", loginPage{
		pageMeta: s.meta(r, "Entrar"),
		Next:     safeNext(r.URL.Query().Get("next")),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Enabled() {
		NewResponse().Redirect("/").Write(w)
		return
	}
	ctx := r.Context()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentAuth)
	clientIP := s.detector.ExtractClientIP(r)

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Formato de requisição inválido").Write(w)
		return
	}
	data := loginPage{pageMeta: s.meta(r, "Entrar"), Next: safeNext(p.Get("next"))}

	if !s.loginLimiter.Allow(clientIP) {
		logger.WarnContext(ctx, "Login attempts exceeded", applog.FieldClientIP, clientIP)
		data.Error = "Muitas tentativas, aguarde um minuto"
		s.render(w, r, http.StatusTooManyRequests, "login.html", data)
		return
	}

	sess, err := s.sessions.Login(p.Raw("password"), clientIP)
	if errors.Is(err, auth.ErrWrongPassword) {
		logger.InfoContext(ctx, "Wrong site password", applog.FieldClientIP, clientIP)
		data.Error = "Senha incorreta"
		s.render(w, r, http.StatusUnauthorized, "login.html", data)
		return
	}
	if err != nil {
		s.fail(w, r, err, applog.OpLogin)
		return
	}

	s.loginLimiter.Reset(clientIP)
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(s.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	logger.InfoContext(ctx, "Site unlocked", applog.FieldClientIP, clientIP)
	NewResponse().Redirect(data.Next).Write(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(auth.CookieName); err == nil {
		s.sessions.Logout(c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	NewResponse().Redirect("/site-login").Write(w)
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
