package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusAccepted).
		Header("X-Custom", "value").
		BodyString("test").
		Write(w)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "test", w.Body.String())
	assert.Equal(t, "value", w.Header().Get("X-Custom"))
}

func TestResponseBuilder_Redirect(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().Redirect("/days/2024-05-02").Write(w)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/days/2024-05-02", w.Header().Get("Location"))
}

func TestResponseBuilder_JSON(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().JSON(map[string]int{"n": 1}).Write(w)

	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":1}`, w.Body.String())
}

func TestResponseBuilder_JSONEncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().JSON(make(chan int)).Write(w)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name string
		b    *ResponseBuilder
		code int
	}{
		{"bad request", BadRequestError("x"), http.StatusBadRequest},
		{"unprocessable", UnprocessableEntityError("x"), http.StatusUnprocessableEntity},
		{"not found", NotFoundError("x"), http.StatusNotFound},
		{"internal", InternalServerError("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.b.Write(w)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
		})
	}
}

func TestErrorResponse_Escapes(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorResponse(http.StatusBadRequest, `<script>alert("x")</script>`).Write(w)

	assert.NotContains(t, w.Body.String(), "<script>")
	assert.Contains(t, w.Body.String(), "&lt;script&gt;")
}

func TestJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	JSONError(http.StatusBadRequest, "data inválida").Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"data inválida"}`, w.Body.String())
}
