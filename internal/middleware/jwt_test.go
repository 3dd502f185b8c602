package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/meshroom/internal/models"
)

const secret = "test-secret"

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWTAuth(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"identity": c.GetString(ContextIdentity),
			"role":     c.MustGet(ContextRole),
		})
	})
	return r
}

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(secret, "ownerhuss@huss.com", models.RolePrivileged, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(secret, token)
	require.NoError(t, err)
	require.Equal(t, "ownerhuss@huss.com", claims.Identity)
	require.Equal(t, models.RolePrivileged, claims.Role)

	_, err = ParseToken("other-secret", token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsExpiredAndForeignAlgorithms(t *testing.T) {
	token, err := IssueToken(secret, "user01@huss.com", models.RoleStandard, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(secret, token)
	require.ErrorIs(t, err, ErrInvalidToken)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{Identity: "x", Role: models.RolePrivileged})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken(secret, raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsUnknownRole(t *testing.T) {
	token, err := IssueToken(secret, "user01@huss.com", models.Role("owner"), time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(secret, token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTAuth(t *testing.T) {
	r := newRouter()
	token, err := IssueToken(secret, "user01@huss.com", models.RoleStandard, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{name: "missing", status: http.StatusUnauthorized},
		{name: "bad format", header: "Token " + token, status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "header", header: "Bearer " + token, status: http.StatusOK},
		{name: "query", query: "?token=" + token, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				require.Contains(t, w.Body.String(), "user01@huss.com")
			}
		})
	}
}
