package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCreateCouponRequest_Validate(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	valid := func() CreateCouponRequest {
		return CreateCouponRequest{
			Code:      "WELCOME",
			Type:      DiscountTypePercentage,
			Value:     decimal.NewFromInt(20),
			StartDate: start,
			EndDate:   start.Add(time.Hour),
		}
	}

	testCases := []struct {
		name    string
		mutate  func(r *CreateCouponRequest)
		wantErr bool
	}{
		{name: "valid", mutate: func(r *CreateCouponRequest) {}},
		{name: "fixed may exceed hundred", mutate: func(r *CreateCouponRequest) {
			r.Type = DiscountTypeFixed
			r.Value = decimal.NewFromInt(50000)
		}},
		{name: "percentage above hundred", mutate: func(r *CreateCouponRequest) { r.Value = decimal.NewFromInt(101) }, wantErr: true},
		{name: "negative value", mutate: func(r *CreateCouponRequest) { r.Value = decimal.NewFromInt(-1) }, wantErr: true},
		{name: "unknown type", mutate: func(r *CreateCouponRequest) { r.Type = "bogo" }, wantErr: true},
		{name: "bad code characters", mutate: func(r *CreateCouponRequest) { r.Code = "SAVE 10" }, wantErr: true},
		{name: "end before start", mutate: func(r *CreateCouponRequest) { r.EndDate = start.Add(-time.Hour) }, wantErr: true},
		{name: "negative max usage", mutate: func(r *CreateCouponRequest) { r.MaxUsage = -1 }, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid()
			tc.mutate(&req)
			err := req.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCoupon_Validity(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := Coupon{
		MaxUsage:   2,
		UsageCount: 1,
		StartDate:  now.Add(-time.Hour),
		EndDate:    now.Add(time.Hour),
		IsActive:   true,
	}
	assert.True(t, c.IsValidAt(now))

	c.UsageCount = 2
	assert.False(t, c.IsValidAt(now))

	c.MaxUsage = 0
	assert.True(t, c.IsValidAt(now))
	assert.True(t, c.IsValidAt(c.EndDate))
	assert.False(t, c.IsValidAt(c.EndDate.Add(time.Nanosecond)))
}
