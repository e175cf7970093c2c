package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"bookbridge/internal/adapter/cache"
	"bookbridge/internal/adapter/db/memory"
	"bookbridge/internal/adapter/db/postgres"
	"bookbridge/internal/adapter/gin/handler"
	grpcmiddleware "bookbridge/internal/adapter/grpc/middleware"
	"bookbridge/internal/adapter/repository/cached"
	"bookbridge/internal/usecase/user"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// RouterSuite drives the REST surface over SQLite and a Redis list cache.
type RouterSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	db     *gorm.DB
	router *gin.Engine
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(s.T())

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	s.Require().NoError(err)
	sqlDB, err := db.DB()
	s.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	s.Require().NoError(postgres.Migrate(db))
	s.db = db

	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})

	repo := cached.NewCachedUserRepository(
		postgres.NewUserRepoPG(db, log),
		cache.NewRedisListCache(s.client, time.Minute, log),
		log,
	)
	limiter := grpcmiddleware.NewRateLimiter(s.client, grpcmiddleware.RateLimiterConfig{
		RequestsPerSecond: 1000,
		BurstCapacity:     1000,
		Enabled:           true,
	}, log)

	s.router = SetupRouter(handler.NewUserHandler(user.New(repo, log), log), limiter, "bookbridge", log,
		ReadinessCheck{Name: "database", Check: sqlDB.PingContext},
		ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error { return s.client.Ping(ctx).Err() }},
	)
}

func (s *RouterSuite) TearDownTest() {
	_ = s.client.Close()
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *RouterSuite) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) list() []handler.UserResponse {
	w := s.do(http.MethodGet, "/usuarios", "")
	s.Require().Equal(http.StatusOK, w.Code)
	var users []handler.UserResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &users))
	return users
}

func (s *RouterSuite) TestCreateThenList() {
	w := s.do(http.MethodPost, "/usuarios", `{"email":"a@x.com","name":"A","age":30}`)
	s.Equal(http.StatusCreated, w.Code)

	var created handler.UserResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &created))
	s.Equal("a@x.com", created.Email)
	s.Equal("A", created.Name)
	s.Require().NotNil(created.Age)
	s.Equal(30, *created.Age)
	s.NotZero(created.ID)

	users := s.list()
	s.Require().Len(users, 1)
	s.Equal("a@x.com", users[0].Email)
	s.Equal("A", users[0].Name)
	s.Equal(30, *users[0].Age)
}

func (s *RouterSuite) TestListEmpty() {
	w := s.do(http.MethodGet, "/usuarios", "")
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`[]`, w.Body.String())
}

func (s *RouterSuite) TestInsertionOrderAndFreshAfterCache() {
	s.Equal(http.StatusCreated, s.do(http.MethodPost, "/usuarios", `{"email":"a@x.com","name":"A"}`).Code)
	s.Len(s.list(), 1) // warms the cache

	s.Equal(http.StatusCreated, s.do(http.MethodPost, "/usuarios", `{"email":"b@x.com","name":"B"}`).Code)

	users := s.list()
	s.Require().Len(users, 2)
	s.Equal("a@x.com", users[0].Email)
	s.Equal("b@x.com", users[1].Email)
}

func (s *RouterSuite) TestInvalidInputStoresNothing() {
	for _, body := range []string{
		`{"name":"A"}`,
		`{"email":"a@x.com"}`,
		`{"email":"not-an-email","name":"A"}`,
		`{"email":"a@x.com","name":"A","age":-1}`,
		`{"email":"a@x.com","name":"A","age":2147483648}`,
		`{"email":"a@x.com","name":"A","age":"x"}`,
		`not json`,
	} {
		w := s.do(http.MethodPost, "/usuarios", body)
		s.Equal(http.StatusBadRequest, w.Code, body)
		s.Contains(w.Body.String(), `"error"`, body)
	}
	s.Empty(s.list())
}

func (s *RouterSuite) TestDuplicateEmail() {
	s.Equal(http.StatusCreated, s.do(http.MethodPost, "/usuarios", `{"email":"a@x.com","name":"A"}`).Code)

	w := s.do(http.MethodPost, "/usuarios", `{"email":"a@x.com","name":"Other"}`)
	s.Equal(http.StatusConflict, w.Code)
	s.JSONEq(`{"error":"email already registered"}`, w.Body.String())
	s.Len(s.list(), 1)
}

func (s *RouterSuite) TestConcurrentDuplicateCreates() {
	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = s.do(http.MethodPost, "/usuarios", `{"email":"same@x.com","name":"S"}`).Code
		}()
	}
	wg.Wait()

	created := 0
	for _, c := range codes {
		if c == http.StatusCreated {
			created++
		} else {
			s.Equal(http.StatusConflict, c)
		}
	}
	s.Equal(1, created)
	s.Len(s.list(), 1)
}

func (s *RouterSuite) TestRedisDownStillServes() {
	s.Require().NoError(s.client.Close())

	s.Equal(http.StatusCreated, s.do(http.MethodPost, "/usuarios", `{"email":"a@x.com","name":"A"}`).Code)
	s.Len(s.list(), 1)
}

func (s *RouterSuite) TestHealthAndDocs() {
	w := s.do(http.MethodGet, "/health", "")
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"status":"healthy","service":"bookbridge"}`, w.Body.String())

	w = s.do(http.MethodGet, OpenAPIPath, "")
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"/usuarios"`)

	w = s.do(http.MethodGet, "/swagger/index.html", "")
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), OpenAPIPath)
}

func (s *RouterSuite) TestReadiness() {
	w := s.do(http.MethodGet, "/ready", "")
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"status":"ready","checks":{"database":"ok","redis":"ok"}}`, w.Body.String())

	s.mr.Close()

	w = s.do(http.MethodGet, "/ready", "")
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.JSONEq(`{"error":"service not ready","checks":{"database":"ok","redis":"unavailable"}}`, w.Body.String())
}

func (s *RouterSuite) TestUnknownRoute() {
	w := s.do(http.MethodGet, "/nope", "")
	s.Equal(http.StatusNotFound, w.Code)
	s.JSONEq(`{"error":"route not found"}`, w.Body.String())
}

func TestRateLimitIgnoresForwardedFor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := grpcmiddleware.NewRateLimiter(client, grpcmiddleware.RateLimiterConfig{
		RequestsPerSecond: 0.001,
		BurstCapacity:     1,
		Enabled:           true,
	}, log)
	r := SetupRouter(handler.NewUserHandler(user.New(memory.NewUserRepo(log), log), log), limiter, "bookbridge", log)

	codes := make([]int, 0, 2)
	for _, xff := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodGet, "/usuarios", nil)
		req.RemoteAddr = "192.0.2.10:40000"
		req.Header.Set("X-Forwarded-For", xff)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes, "spoofed X-Forwarded-For must not open a new bucket")
}
