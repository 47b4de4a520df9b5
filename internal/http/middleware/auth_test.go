package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key"

func authRouter(opts AuthOptions, admin bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Auth(opts))
	if admin {
		r.Use(RequireAdmin())
	}
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user":     c.GetString("userID"),
			"username": c.GetString("username"),
			"role":     c.GetString("role"),
		})
	})
	return r
}

func doAuth(r *gin.Engine, header, value string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestIssueAndParseToken(t *testing.T) {
	tok, err := IssueToken(testSecret, "u1", "Ada", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := ParseToken(testSecret, tok, 0)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "u1" || claims.Name != "Ada" || claims.Role != RoleAdmin || claims.ExpiresAt == nil {
		t.Fatalf("claims: %+v", claims)
	}

	if _, err := ParseToken("other-secret", tok, 0); err == nil {
		t.Fatalf("wrong secret must fail")
	}
	if _, err := IssueToken("", "u1", "", "", 0); err == nil {
		t.Fatalf("empty secret must fail")
	}
	if _, err := IssueToken(testSecret, "", "", "", 0); err == nil {
		t.Fatalf("empty user must fail")
	}
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: "u1"}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseToken(testSecret, tok, 0); err == nil {
		t.Fatalf("HS512 token must be rejected")
	}

	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte(testSecret))
	if _, err := ParseToken(testSecret, noSub, 0); err == nil {
		t.Fatalf("token without subject must be rejected")
	}
}

func TestAuth_Bearer(t *testing.T) {
	r := authRouter(AuthOptions{Secret: testSecret}, false)
	valid, _ := IssueToken(testSecret, "u1", "Ada", "", time.Hour)
	anon, _ := IssueToken(testSecret, "u2", "", "", 0)

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantUser string
		wantName string
		wantMsg  string
	}{
		{"missing", "", http.StatusUnauthorized, "", "", "missing bearer token"},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized, "", "", "missing bearer token"},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized, "", "", "invalid token"},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, "", "", "token has expired"},
		{"valid", "Bearer " + valid, http.StatusOK, "u1", "Ada", ""},
		{"lowercase scheme", "bearer " + valid, http.StatusOK, "u1", "Ada", ""},
		{"name falls back to subject", "Bearer " + anon, http.StatusOK, "u2", "u2", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hdr := ""
			if tc.header != "" {
				hdr = "Authorization"
			}
			w := doAuth(r, hdr, tc.header)
			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.wantCode, w.Body.String())
			}
			var body map[string]string
			_ = json.Unmarshal(w.Body.Bytes(), &body)
			if tc.wantCode == http.StatusOK {
				if body["user"] != tc.wantUser || body["username"] != tc.wantName {
					t.Fatalf("identity = %v", body)
				}
				return
			}
			if body["code"] != "unauthorized" || body["message"] != tc.wantMsg {
				t.Fatalf("body = %v", body)
			}
			if w.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("missing WWW-Authenticate")
			}
		})
	}
}

func TestAuth_Disabled_TrustsHeader(t *testing.T) {
	r := authRouter(AuthOptions{Disabled: true}, false)

	if w := doAuth(r, "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header -> %d", w.Code)
	}
	w := doAuth(r, HeaderUserID, " dev-1 ")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["user"] != "dev-1" || body["username"] != "dev-1" {
		t.Fatalf("identity = %v", body)
	}
}

func TestRequireAdmin(t *testing.T) {
	r := authRouter(AuthOptions{Secret: testSecret}, true)
	user, _ := IssueToken(testSecret, "u1", "", "", time.Hour)
	admin, _ := IssueToken(testSecret, "root", "", RoleAdmin, time.Hour)

	if w := doAuth(r, "Authorization", "Bearer "+user); w.Code != http.StatusForbidden {
		t.Fatalf("user -> %d", w.Code)
	}
	if w := doAuth(r, "Authorization", "Bearer "+admin); w.Code != http.StatusOK {
		t.Fatalf("admin -> %d", w.Code)
	}
}
