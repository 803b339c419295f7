package bootstrap

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parallel-quest/internal/domain"
	"parallel-quest/internal/middleware"
)

const testSecret = "bootstrap-secret"

func memoryConfig() *Config {
	return &Config{
		StorageDriver:         StorageMemory,
		JWTSecret:             testSecret,
		ServerPort:            "0",
		LogLevel:              "error",
		AppEnv:                "test",
		CORSAllowedOrigin:     "http://localhost:3000",
		DemoRoomCode:          "DEMO01",
		DemoRoomName:          "Demo Room",
		RoomSyncSchedule:      "@every 5m",
		ComputeMaxTimeLimitMs: 30_000,
		ComputeMaxPixels:      4096 * 4096,
		ComputeJobTTL:         time.Hour,
		MemorySeedUsers: []domain.User{
			{ID: 1, Username: "alice", Role: domain.RoleAdmin},
			{ID: 2, Username: "bob", Role: domain.RoleStudent},
		},
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	logrus.SetOutput(io.Discard)
	gin.SetMode(gin.TestMode)

	app, err := New(memoryConfig(), log)
	require.NoError(t, err)
	return app
}

func bearer(t *testing.T, userID uint, role string) string {
	t.Helper()
	token, err := middleware.GenerateToken(testSecret, userID, role, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(app *App, method, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)
	return w
}

func TestNew_MemoryModeCreatesProtectedDemoRoom(t *testing.T) {
	app := newTestApp(t)

	assert.Nil(t, app.RedisClient)
	assert.Nil(t, app.AsynqServer, "没有 Redis 时不启动 worker")
	require.NotNil(t, app.Memory)

	w := serve(app, http.MethodGet, "/api/rooms", bearer(t, 2, domain.RoleStudent), "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Rooms []domain.RoomSummary `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Rooms, 1)
	assert.Equal(t, "DEMO01", body.Rooms[0].Code)
	assert.True(t, body.Rooms[0].IsProtected)
}

func TestRouter_AuthAndAdminGuards(t *testing.T) {
	app := newTestApp(t)

	assert.Equal(t, http.StatusOK, serve(app, http.MethodGet, "/ping", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(app, http.MethodGet, "/api/rooms", "", "").Code)
	assert.Equal(t, http.StatusForbidden,
		serve(app, http.MethodPost, "/api/rooms", bearer(t, 2, domain.RoleStudent), `{"name":"x"}`).Code)
	assert.Equal(t, http.StatusCreated,
		serve(app, http.MethodPost, "/api/rooms", bearer(t, 1, domain.RoleAdmin), `{"name":"Algebra"}`).Code)

	w := serve(app, http.MethodOptions, "/api/rooms", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_DemoRoomJoinAndProgress(t *testing.T) {
	app := newTestApp(t)
	student := bearer(t, 2, domain.RoleStudent)

	require.Equal(t, http.StatusOK, serve(app, http.MethodPost, "/api/rooms/join", student, `{"room_code":"demo01"}`).Code)

	w := serve(app, http.MethodPost, "/api/progress/complete", student, `{"module_number":2}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(app, http.MethodGet, "/api/progress/my-progress", student, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"completed_modules":[2]`)
}

func TestRouter_ComputeWithoutRedis(t *testing.T) {
	app := newTestApp(t)

	w := serve(app, http.MethodGet, "/api/compute/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"async_jobs":false`)

	w = serve(app, http.MethodPost, "/api/compute/jobs", "", `{"width":64,"height":64}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestParseSeedUsers(t *testing.T) {
	users, err := parseSeedUsers("1:alice:admin, 2:bob")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, domain.RoleAdmin, users[0].Role)
	assert.Equal(t, domain.RoleStudent, users[1].Role)

	_, err = parseSeedUsers("x:bob")
	assert.Error(t, err)
	_, err = parseSeedUsers("3")
	assert.Error(t, err)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("DEMO_ROOM_CODE", "")
	t.Setenv("COMPUTE_JOB_TTL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, "DEMO01", cfg.DemoRoomCode)
	assert.Equal(t, "pq:", cfg.KeyPrefix)
	assert.Equal(t, time.Hour, cfg.ComputeJobTTL)
}

func TestLoadConfig_Rejections(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")

	t.Setenv("STORAGE_DRIVER", "sqlite")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("DEMO_ROOM_CODE", "bad code")
	_, err = LoadConfig()
	assert.Error(t, err)

	t.Setenv("DEMO_ROOM_CODE", "")
	t.Setenv("COMPUTE_JOB_TTL", "-1s")
	_, err = LoadConfig()
	assert.Error(t, err)
}
