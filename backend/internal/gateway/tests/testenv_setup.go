package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"library_turnover/backend/internal/academicyear"
	"library_turnover/backend/internal/cache"
	"library_turnover/backend/internal/docstore"
	"library_turnover/backend/internal/gateway"
	"library_turnover/backend/internal/gateway/util"
	"library_turnover/backend/internal/shared"
	"library_turnover/backend/internal/turnover"
	"library_turnover/backend/internal/turnoverrpc"
)

const (
	bufSize    = 1024 * 1024
	testSecret = "test-secret"
)

// TestEnv holds all the running components for the test
type TestEnv struct {
	Router http.Handler
	Store  *docstore.MemoryStore
}

// setupGatewayTestEnv runs the turnover service over bufconn on an in-memory
// store and puts the gateway router in front of it.
func setupGatewayTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	log := zap.NewNop().Sugar()
	store := docstore.NewMemoryStore()

	lis := bufconn.Listen(bufSize)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(turnoverrpc.UnaryValidator(), turnoverrpc.UnaryLogger(log)))
	turnoverrpc.RegisterTurnoverServiceServer(s, turnover.NewTurnoverService(store, cache.NewBus(), log, shared.EngineConfig{
		BatchSize:           shared.DefaultBatchSize,
		LargeClassThreshold: shared.DefaultLargeClassThreshold,
		CacheTTL:            time.Minute,
	}))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough://bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	cfg := &shared.GatewayConfig{
		ServiceConfig: shared.ServiceConfig{
			Security: shared.SecurityConfig{JWTSecret: testSecret, JWTExpirationHours: 1},
			GRPC:     shared.GRPCConfig{RequestTimeout: 5 * time.Second},
		},
		CORS: shared.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}},
	}

	return &TestEnv{
		Router: gateway.SetupRoutes(gateway.NewServiceClientsFromConn(conn), cfg, log),
		Store:  store,
	}
}

// token signs a test token for account
func token(t *testing.T, account string) string {
	t.Helper()
	tok, err := util.IssueToken([]byte(testSecret), account, "Biblioteca Teste", time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a request through the router and returns the recorder
func (env *TestEnv) do(t *testing.T, method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	env.Router.ServeHTTP(rr, req)
	return rr
}

// decode unmarshals a response body into v
func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

// seedSchool stores an active 2024 year, two levels, class 1A and n students in it.
func seedSchool(t *testing.T, store docstore.Store, account string, n int) {
	t.Helper()
	ctx := context.Background()

	year, err := academicyear.NewYear("2024", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, account, docstore.AcademicYears, year.ID, year))

	for _, l := range []shared.EducationalLevel{{ID: "L1", Name: "1º ano", Order: 1}, {ID: "L2", Name: "2º ano", Order: 2}} {
		require.NoError(t, store.Create(ctx, account, docstore.EducationalLevels, l.ID, l))
	}
	require.NoError(t, store.Create(ctx, account, docstore.Classes, "c-1a", shared.Class{
		ID: "c-1a", Name: "1A", Shift: "manhã", EducationalLevelID: "L1", AcademicYear: "2024", Status: shared.ClassActive,
	}))
	require.NoError(t, store.Create(ctx, account, docstore.Books, "b1", shared.Book{ID: "b1", Title: "Dom Casmurro", Category: "Literatura"}))

	for i := 1; i <= n; i++ {
		s := shared.Student{
			ID: fmt.Sprintf("s%02d", i), Name: fmt.Sprintf("Aluno %02d", i),
			Classroom: "1A", Shift: "manhã", EducationalLevelID: "L1",
		}
		require.NoError(t, store.Create(ctx, account, docstore.Students, s.ID, s))
	}
	require.NoError(t, store.Create(ctx, account, docstore.Loans, "l1", shared.Loan{
		ID: "l1", StudentID: "s01", BookID: "b1",
		BorrowDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Status:     shared.LoanActive,
	}))
}
