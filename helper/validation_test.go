package helper

import (
	"strings"
	"testing"
)

func TestValidateStructIsPopulated(t *testing.T) {
	type inner struct {
		Bucket string `errorTxt:"bucket name" mandatory:"yes"`
		Prefix string `errorTxt:"bucket prefix"`
	}
	type outer struct {
		Store    inner
		LogLevel string `errorTxt:"log level" mandatory:"yes"`
	}
	// Test 1 - missing values are reported using their errorTxt.
	err := ValidateStructIsPopulated(&outer{})
	if err == nil {
		t.Fatal("expected error for unpopulated struct")
	}
	if !strings.Contains(err.Error(), "bucket name") || !strings.Contains(err.Error(), "log level") {
		t.Fatalf("unexpected error text: %v", err)
	}
	if strings.Contains(err.Error(), "bucket prefix") {
		t.Fatalf("optional field reported as missing: %v", err)
	}
	// Test 2 - a populated struct passes.
	err = ValidateStructIsPopulated(outer{Store: inner{Bucket: "b"}, LogLevel: "info"})
	if err != nil {
		t.Fatal(err)
	}
}
