//go:build integration && postgres

package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"os"
	"testing"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
	"github.com/R3E-Network/cause_registry/internal/app/services/causes"
	"github.com/R3E-Network/cause_registry/internal/app/storage/postgres"
	"github.com/R3E-Network/cause_registry/internal/gasbank"
	"github.com/R3E-Network/cause_registry/internal/logging"
	"github.com/R3E-Network/cause_registry/internal/middleware"
	"github.com/R3E-Network/cause_registry/internal/platform/migrations"
)

// Integration test against Postgres to ensure migrations + core flows work with persistence.
func TestIntegrationPostgres(t *testing.T) {
	_ = godotenv.Load() // allow .env for local runs
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration")
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := migrations.Up(db.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	log := logging.NewDiscard()
	ledger := gasbank.NewManager(postgres.NewGasBankStore(db), log)
	registry := causes.New(postgres.New(db), ledger, log)

	owner, _ := cause.ParseAddress(ownerAddr)
	if err := registry.Initialize(ctx, owner); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	api := &testAPI{t: t, key: key, ledger: ledger, handler: NewHandler(Options{
		Registry: registry,
		Ledger:   ledger,
		Auth:     middleware.NewAuthMiddleware(&key.PublicKey, "", log),
		Logger:   log,
	})}

	rec := api.do(http.MethodPost, "/causes", ownerAddr, causeBody("pg-integration"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create cause status: %d %s", rec.Code, rec.Body.String())
	}
	var created map[string]uint64
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if rec := api.do(http.MethodGet, "/causes/"+jsonNumber(created["id"]), "", nil); rec.Code != http.StatusOK {
		t.Fatalf("get cause status: %d", rec.Code)
	}
}

func jsonNumber(n uint64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
