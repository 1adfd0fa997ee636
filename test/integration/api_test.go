// Package integration provides end-to-end tests for the user API.
// Tests exercise the full stack (HTTP handlers, use cases, field
// encryption and blind indexing, SQL repositories) against both
// PostgreSQL and MySQL databases.
package integration

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/piivault/internal/app"
	"github.com/allisson/piivault/internal/config"
	"github.com/allisson/piivault/internal/testutil"
	"github.com/allisson/piivault/internal/user/http/dto"
)

// integrationTestContext holds all dependencies and state for integration testing.
type integrationTestContext struct {
	container *app.Container
	db        *sql.DB
	server    *httptest.Server
	dbDriver  string
}

// makeRequest performs an HTTP request and returns the response and body.
func (ctx *integrationTestContext) makeRequest(
	t *testing.T,
	method, path string,
	body interface{},
) (*http.Response, []byte) {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		require.NoError(t, err, "failed to marshal request body")
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ctx.server.URL+path, bodyReader)
	require.NoError(t, err, "failed to create request")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err, "failed to perform request")

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	if closeErr := resp.Body.Close(); closeErr != nil {
		t.Logf("Warning: failed to close response body: %v", closeErr)
	}

	return resp, respBody
}

// generateFieldKey creates a fresh base64-encoded 32-byte master key.
func generateFieldKey(t *testing.T) string {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err, "failed to generate field key")
	return base64.StdEncoding.EncodeToString(key)
}

// setupIntegrationTest initializes all components for integration testing.
func setupIntegrationTest(t *testing.T, dbDriver string) *integrationTestContext {
	t.Helper()

	gin.SetMode(gin.TestMode)

	var db *sql.DB
	var dsn string
	if dbDriver == "postgres" {
		db = testutil.SetupPostgresDB(t)
		dsn = testutil.GetPostgresTestDSN()
	} else {
		db = testutil.SetupMySQLDB(t)
		dsn = testutil.GetMySQLTestDSN()
	}

	cfg := &config.Config{
		DBDriver:             dbDriver,
		DBConnectionString:   dsn,
		DBMaxOpenConnections: 10,
		DBMaxIdleConnections: 5,
		DBConnMaxLifetime:    time.Hour,
		ServerHost:           "localhost",
		ServerPort:           8080,
		LogLevel:             "error",
		FieldKey:             generateFieldKey(t),
		BackfillBatchSize:    100,
	}

	container := app.NewContainer(cfg)

	httpSrv, err := container.HTTPServer()
	require.NoError(t, err, "failed to get HTTP server")

	handler := httpSrv.GetHandler()
	require.NotNil(t, handler, "handler should not be nil")

	testServer := httptest.NewServer(handler)

	return &integrationTestContext{
		container: container,
		db:        db,
		server:    testServer,
		dbDriver:  dbDriver,
	}
}

// teardownIntegrationTest cleans up all resources.
func teardownIntegrationTest(t *testing.T, ctx *integrationTestContext) {
	t.Helper()

	if ctx.server != nil {
		ctx.server.Close()
	}

	if ctx.container != nil {
		if err := ctx.container.Shutdown(context.Background()); err != nil {
			t.Logf("Warning: container shutdown error: %v", err)
		}
	}

	if ctx.db != nil {
		testutil.TeardownDB(t, ctx.db)
	}
}

// forEachDriver runs the test body against each database a test environment provides.
func forEachDriver(t *testing.T, testFn func(t *testing.T, testCtx *integrationTestContext)) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	drivers := []struct {
		name string
		skip func(*testing.T)
	}{
		{name: "postgres", skip: testutil.SkipIfNoPostgres},
		{name: "mysql", skip: testutil.SkipIfNoMySQL},
	}

	for _, driver := range drivers {
		t.Run(driver.name, func(t *testing.T) {
			driver.skip(t)

			testCtx := setupIntegrationTest(t, driver.name)
			defer teardownIntegrationTest(t, testCtx)

			testFn(t, testCtx)
		})
	}
}

// registerUser creates a user through the API and returns the decoded response.
func registerUser(t *testing.T, testCtx *integrationTestContext, name, email string) dto.UserResponse {
	t.Helper()

	resp, body := testCtx.makeRequest(t, http.MethodPost, "/v1/users", dto.RegisterUserRequest{
		Name:     name,
		Email:    email,
		Password: "Sup3r$ecretPass!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "register failed: %s", string(body))

	var user dto.UserResponse
	require.NoError(t, json.Unmarshal(body, &user))
	return user
}

func TestIntegration_HealthAndReadiness(t *testing.T) {
	forEachDriver(t, func(t *testing.T, testCtx *integrationTestContext) {
		resp, body := testCtx.makeRequest(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "healthy")

		resp, body = testCtx.makeRequest(t, http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var readiness struct {
			Status     string            `json:"status"`
			Components map[string]string `json:"components"`
		}
		require.NoError(t, json.Unmarshal(body, &readiness))
		assert.Equal(t, "ready", readiness.Status)
		assert.Equal(t, "ok", readiness.Components["database"])
	})
}

func TestIntegration_UserLifecycle(t *testing.T) {
	forEachDriver(t, func(t *testing.T, testCtx *integrationTestContext) {
		created := registerUser(t, testCtx, "Alice", "alice@example.com")
		assert.Equal(t, "Alice", created.Name)
		assert.Equal(t, "alice@example.com", created.Email)

		userID, err := uuid.Parse(created.ID)
		require.NoError(t, err, "response ID should be a valid UUID")

		// The row must hold ciphertext and a blind index, never the address itself.
		var emailEncrypted, emailHash string
		if testCtx.dbDriver == "postgres" {
			err = testCtx.db.QueryRow(
				"SELECT email_encrypted, email_hash FROM users WHERE id = $1", userID,
			).Scan(&emailEncrypted, &emailHash)
		} else {
			err = testCtx.db.QueryRow(
				"SELECT email_encrypted, email_hash FROM users WHERE id = ?", userID.String(),
			).Scan(&emailEncrypted, &emailHash)
		}
		require.NoError(t, err)
		assert.NotEmpty(t, emailEncrypted)
		assert.NotContains(t, emailEncrypted, "alice@example.com")
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), emailHash)

		// Fetch by ID returns the decrypted address.
		resp, body := testCtx.makeRequest(t, http.MethodGet, "/v1/users/"+created.ID, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var fetched dto.UserResponse
		require.NoError(t, json.Unmarshal(body, &fetched))
		assert.Equal(t, created.ID, fetched.ID)
		assert.Equal(t, "alice@example.com", fetched.Email)

		// Lookup matches case and whitespace variants of the address.
		resp, body = testCtx.makeRequest(t, http.MethodGet, "/v1/users/lookup?email=%20%20ALICE%40Example.COM%20", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var found dto.UserResponse
		require.NoError(t, json.Unmarshal(body, &found))
		assert.Equal(t, created.ID, found.ID)

		// Registering the same address again conflicts.
		resp, _ = testCtx.makeRequest(t, http.MethodPost, "/v1/users", dto.RegisterUserRequest{
			Name:     "Alice Again",
			Email:    "Alice@Example.com",
			Password: "Sup3r$ecretPass!",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		// Update the email and verify lookups follow.
		resp, body = testCtx.makeRequest(t, http.MethodPut, "/v1/users/"+created.ID+"/email", dto.UpdateUserEmailRequest{
			Email: "alice.new@example.com",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, "update failed: %s", string(body))

		var updated dto.UserResponse
		require.NoError(t, json.Unmarshal(body, &updated))
		assert.Equal(t, "alice.new@example.com", updated.Email)

		resp, _ = testCtx.makeRequest(t, http.MethodGet, "/v1/users/lookup?email=alice@example.com", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "old address should no longer resolve")

		resp, body = testCtx.makeRequest(t, http.MethodGet, "/v1/users/lookup?email=alice.new@example.com", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NoError(t, json.Unmarshal(body, &found))
		assert.Equal(t, created.ID, found.ID)
	})
}

func TestIntegration_RegisterValidation(t *testing.T) {
	forEachDriver(t, func(t *testing.T, testCtx *integrationTestContext) {
		tests := []struct {
			name       string
			request    dto.RegisterUserRequest
			wantStatus int
		}{
			{
				name: "invalid email",
				request: dto.RegisterUserRequest{
					Name:     "Bob",
					Email:    "not-an-email",
					Password: "Sup3r$ecretPass!",
				},
				wantStatus: http.StatusUnprocessableEntity,
			},
			{
				name: "missing name",
				request: dto.RegisterUserRequest{
					Email:    "bob@example.com",
					Password: "Sup3r$ecretPass!",
				},
				wantStatus: http.StatusUnprocessableEntity,
			},
			{
				name: "weak password",
				request: dto.RegisterUserRequest{
					Name:     "Bob",
					Email:    "bob@example.com",
					Password: "short",
				},
				wantStatus: http.StatusUnprocessableEntity,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp, _ := testCtx.makeRequest(t, http.MethodPost, "/v1/users", tt.request)
				assert.Equal(t, tt.wantStatus, resp.StatusCode)
			})
		}

		resp, _ := testCtx.makeRequest(t, http.MethodGet, "/v1/users/lookup", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "lookup without email param")

		resp, _ = testCtx.makeRequest(t, http.MethodGet, "/v1/users/not-a-uuid", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "malformed user id")
	})
}

func TestIntegration_BackfillEmailHash(t *testing.T) {
	forEachDriver(t, func(t *testing.T, testCtx *integrationTestContext) {
		codec, err := testCtx.container.FieldCodec()
		require.NoError(t, err)

		// Seed rows in a pre-backfill state: encrypted email, empty hash.
		seedEmails := []string{"carol@example.com", "dave@example.com"}
		seedIDs := make([]uuid.UUID, 0, len(seedEmails))
		for i, email := range seedEmails {
			encrypted, encErr := codec.Encrypt(email)
			require.NoError(t, encErr)
			id := testutil.CreateTestUser(t, testCtx.db, testCtx.dbDriver, fmt.Sprintf("seed-%d", i), encrypted, "")
			seedIDs = append(seedIDs, id)
		}

		// A record without an email stays untouched by the backfill.
		emptyID := testutil.CreateTestUser(t, testCtx.db, testCtx.dbDriver, "no-email", "", "")

		backfill, err := testCtx.container.BackfillUseCase()
		require.NoError(t, err)

		result, err := backfill.Run(context.Background(), 100)
		require.NoError(t, err)
		assert.Equal(t, 3, result.Scanned)
		assert.Equal(t, 2, result.Updated)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, 0, result.Failed)

		// Seeded users are now reachable through the lookup endpoint.
		for i, email := range seedEmails {
			resp, body := testCtx.makeRequest(t, http.MethodGet, "/v1/users/lookup?email="+email, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode, "lookup after backfill: %s", string(body))

			var found dto.UserResponse
			require.NoError(t, json.Unmarshal(body, &found))
			assert.Equal(t, seedIDs[i].String(), found.ID)
		}

		var emptyHash string
		if testCtx.dbDriver == "postgres" {
			err = testCtx.db.QueryRow("SELECT email_hash FROM users WHERE id = $1", emptyID).Scan(&emptyHash)
		} else {
			err = testCtx.db.QueryRow("SELECT email_hash FROM users WHERE id = ?", emptyID.String()).Scan(&emptyHash)
		}
		require.NoError(t, err)
		assert.Empty(t, emptyHash)

		// A second run changes nothing.
		result, err = backfill.Run(context.Background(), 100)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Updated)
		assert.Equal(t, 0, result.Failed)
	})
}
