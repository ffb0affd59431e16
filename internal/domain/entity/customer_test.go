package entity

import (
	"testing"
)

func TestCustomer_TableName(t *testing.T) {
	if got := (Customer{}).TableName(); got != "customers" {
		t.Errorf("TableName() returned %s, expected customers", got)
	}
}

func TestCustomer_IsBlank(t *testing.T) {
	if !(&Customer{}).IsBlank() {
		t.Error("empty customer should be blank")
	}
	if (&Customer{Country: "JP"}).IsBlank() {
		t.Error("customer with a country should not be blank")
	}
}
