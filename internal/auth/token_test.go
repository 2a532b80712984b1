package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"bilancio/internal/cache"
)

const (
	testSecret = "test-secret"
	testIssuer = "bilancio-test"
)

func newTestManager(withCache bool) *TokenManager {
	var c cache.Cache[string]
	if withCache {
		c = cache.NewLRUCache[string](16, time.Minute)
	}
	return NewTokenManager(testSecret, testIssuer, c)
}

func TestVerifyToken(t *testing.T) {
	m := newTestManager(false)

	token, err := m.IssueToken("alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	identity, err := m.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity != "alice" {
		t.Fatalf("identity = %q, want alice", identity)
	}
}

func TestVerifyTokenRejections(t *testing.T) {
	m := newTestManager(false)

	t.Run("garbage", func(t *testing.T) {
		if _, err := m.VerifyToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("got %v, want ErrInvalidToken", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager("other-secret", testIssuer, nil)
		token, err := other.IssueToken("alice", time.Hour)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, err := m.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("got %v, want ErrInvalidToken", err)
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokenManager(testSecret, "someone-else", nil)
		token, err := other.IssueToken("alice", time.Hour)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, err := m.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("got %v, want ErrInvalidToken", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		token, err := m.IssueToken("alice", -time.Minute)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, err := m.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("got %v, want ErrInvalidToken", err)
		}
	})
}

func TestVerifyTokenCaches(t *testing.T) {
	c := cache.NewLRUCache[string](16, time.Minute)
	m := NewTokenManager(testSecret, testIssuer, c)

	token, err := m.IssueToken("alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.VerifyToken(token); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if c.Size() != 1 {
		t.Fatalf("cache size = %d, want 1", c.Size())
	}

	// Second verification is served from the cache.
	identity, err := m.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify cached: %v", err)
	}
	if identity != "alice" {
		t.Fatalf("identity = %q", identity)
	}
}

func TestMiddleware(t *testing.T) {
	m := newTestManager(true)
	e := echo.New()

	handler := Middleware(m)(func(c echo.Context) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			t.Fatal("identity missing from context")
		}
		return c.String(http.StatusOK, identity)
	})

	do := func(authorization string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := handler(c); err != nil {
			e.HTTPErrorHandler(err, c)
		}
		return rec
	}

	token, err := m.IssueToken("alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := do("Bearer " + token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "alice" {
		t.Fatalf("body = %q", rec.Body.String())
	}

	for name, header := range map[string]string{
		"missing header": "",
		"no scheme":      token,
		"wrong scheme":   "Basic " + token,
		"empty token":    "Bearer ",
		"bad token":      "Bearer garbage",
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(header)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}
