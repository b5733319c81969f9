package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	w := httptest.NewRecorder()
	_, router := gin.CreateTestContext(w)

	router.Use(Logger(zap.New(core)))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/test?x=1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, logs.Len())

	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/test", fields["path"])
	assert.Equal(t, "x=1", fields["query"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
}

func TestLogger_WithDifferentMethods(t *testing.T) {
	methods := []string{http.MethodGet, http.MethodPost}

	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			w := httptest.NewRecorder()
			_, router := gin.CreateTestContext(w)

			router.Use(Logger(zap.New(core)))
			router.Handle(method, "/test", func(c *gin.Context) {
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(method, "/test", nil)
			router.ServeHTTP(w, req)

			require.Equal(t, 1, logs.Len())
			assert.Equal(t, method, logs.All()[0].ContextMap()["method"])
		})
	}
}

func TestLogger_ErrorsLoggedAsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	w := httptest.NewRecorder()
	_, router := gin.CreateTestContext(w)

	router.Use(Logger(zap.New(core)))
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
		c.Status(http.StatusInternalServerError)
	})

	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Contains(t, entry.ContextMap()["errors"], "boom")
}
