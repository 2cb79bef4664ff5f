package customer

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"sevirun/internal/db/dbtest"
	customerrepo "sevirun/internal/repository/customer"
	tokenrepo "sevirun/internal/repository/token"
)

func TestSignupAndLogin_Integration(t *testing.T) {
	ctx := context.Background()
	pool := dbtest.Pool(ctx, t)

	svc := New(customerrepo.NewPostgres(pool, nil), tokenrepo.NewPostgres(pool), nil, WithHashCost(bcrypt.MinCost))

	cust, err := svc.Signup(ctx, SignupInput{
		Email:    "integration@example.com",
		Password: "Abcdefg1",
		Name:     "Int",
		Address:  "Calle Mayor 1",
		City:     "Sevilla",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if cust == nil || cust.ID == "" {
		t.Fatalf("expected created customer, got %+v", cust)
	}

	_, access, _, err := svc.Login(ctx, "integration@example.com", "Abcdefg1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	me, err := svc.LookupByToken(ctx, access)
	if err != nil || me.ID != cust.ID {
		t.Fatalf("LookupByToken = %+v, %v", me, err)
	}
}
