package validation

import (
	"testing"

	"github.com/shopspring/decimal"
)

type regInput struct {
	Username        string `json:"username" validate:"required,username"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Phone           string `json:"phone" validate:"omitempty,phone"`
}

type moneyInput struct {
	Amount *decimal.Decimal `json:"amount_involved" validate:"required,gte=0"`
}

func TestValidate_PasswordMismatch(t *testing.T) {
	errs, err := Validate(regInput{Username: "alice", Password: "password1", PasswordConfirm: "password2"})
	if err != nil {
		t.Fatal(err)
	}
	got := errs["password_confirm"]
	if len(got) != 1 || got[0] != "Passwords do not match" {
		t.Fatalf("unexpected errors: %#v", errs)
	}
}

func TestValidate_UsernameAndPhone(t *testing.T) {
	errs, _ := Validate(regInput{Username: "a b", Password: "password1", PasswordConfirm: "password1", Phone: "call me"})
	if len(errs["username"]) == 0 || len(errs["phone"]) == 0 {
		t.Fatalf("expected username and phone errors, got %#v", errs)
	}
}

func TestValidate_OK(t *testing.T) {
	errs, err := Validate(regInput{Username: "alice.k", Password: "password1", PasswordConfirm: "password1", Phone: "+91 98765-43210"})
	if err != nil || errs != nil {
		t.Fatalf("expected no errors, got %#v %v", errs, err)
	}
}

func TestValidate_DecimalAmount(t *testing.T) {
	neg := decimal.RequireFromString("-1")
	errs, _ := Validate(moneyInput{Amount: &neg})
	if len(errs["amount_involved"]) == 0 {
		t.Fatalf("negative amount should fail, got %#v", errs)
	}

	errs, _ = Validate(moneyInput{})
	if got := errs["amount_involved"]; len(got) == 0 || got[0] != "This field is required" {
		t.Fatalf("missing amount should be required, got %#v", errs)
	}

	ok := decimal.RequireFromString("10000")
	if errs, _ := Validate(moneyInput{Amount: &ok}); errs != nil {
		t.Fatalf("valid amount rejected: %#v", errs)
	}
}
