package validator

import (
	"strings"
	"testing"
	"time"

	"bookery/pkg/logger"
	"bookery/pkg/model"
)

func newValidator() *CheckoutValidator {
	return NewCheckoutValidator(logger.New(logger.Config{
		Level:     "error",
		Format:    logger.JSON,
		AddSource: false,
		Service:   "test",
	}))
}

func validRequest() *model.CheckoutRequest {
	start := time.Now().Add(24 * time.Hour)
	return &model.CheckoutRequest{
		BusinessID:    "64a000000000000000000010",
		CustomerName:  "Dana Levi",
		CustomerEmail: "dana@example.com",
		CustomerPhone: "+972501234567",
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		Currency:      "ILS",
		Units: []model.CheckoutUnit{
			{Label: "Haircut", Price: 3000},
		},
	}
}

func TestValidate_AcceptsValidRequest(t *testing.T) {
	if err := newValidator().Validate(validRequest()); err != nil {
		t.Errorf("expected valid request to pass, got %v", err)
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(req *model.CheckoutRequest)
		wantText string
	}{
		{
			name:     "missing business id",
			mutate:   func(req *model.CheckoutRequest) { req.BusinessID = "" },
			wantText: "BusinessID is required",
		},
		{
			name:     "malformed business id",
			mutate:   func(req *model.CheckoutRequest) { req.BusinessID = "not-an-oid" },
			wantText: "valid MongoDB ObjectID",
		},
		{
			name:     "customer name too short",
			mutate:   func(req *model.CheckoutRequest) { req.CustomerName = "D" },
			wantText: "at least 2",
		},
		{
			name:     "bad email",
			mutate:   func(req *model.CheckoutRequest) { req.CustomerEmail = "not-an-email" },
			wantText: "valid email",
		},
		{
			name:     "bad phone",
			mutate:   func(req *model.CheckoutRequest) { req.CustomerPhone = "0501234567" },
			wantText: "E.164",
		},
		{
			name:     "bad currency",
			mutate:   func(req *model.CheckoutRequest) { req.Currency = "SHEKELS" },
			wantText: "ISO 4217",
		},
		{
			name:     "no units",
			mutate:   func(req *model.CheckoutRequest) { req.Units = []model.CheckoutUnit{} },
			wantText: "at least 1",
		},
		{
			name: "unit label too short",
			mutate: func(req *model.CheckoutRequest) {
				req.Units = []model.CheckoutUnit{{Label: "X", Price: 100}}
			},
			wantText: "at least 2",
		},
	}

	v := newValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			err := v.Validate(req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("expected error containing %q, got %q", tt.wantText, err.Error())
			}
		})
	}
}

func TestValidate_TimeWindow(t *testing.T) {
	v := newValidator()

	req := validRequest()
	req.EndTime = req.StartTime
	if err := v.Validate(req); err == nil {
		t.Error("expected error when end_time equals start_time")
	}

	req = validRequest()
	req.StartTime = time.Now().Add(-time.Hour)
	req.EndTime = time.Now().Add(time.Hour)
	if err := v.Validate(req); err == nil {
		t.Error("expected error for start_time in the past")
	}
}
