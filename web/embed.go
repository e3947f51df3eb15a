// Package web embeds the page templates and static assets served by
// internal/http.
package web

import "embed"

// TemplatesFS holds the page templates; layout.html defines the shared
// header and footer.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and the day page script.
//
//go:embed static/*
var StaticFS embed.FS
