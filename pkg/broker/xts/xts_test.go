package xts

import (
	"testing"

	"github.com/quantbay/optexec/pkg/broker"
	"github.com/quantbay/optexec/pkg/broker/model"
)

func TestToUpdateStatusMapping(t *testing.T) {
	cases := []struct {
		venueStatus string
		want        model.OrderStatus
		wantCode    int
	}{
		{"Filled", model.OrderStatusFilled, 0},
		{"Rejected", model.OrderStatusRejected, broker.CodeRejected},
		{"Cancelled", model.OrderStatusCancelled, broker.CodeRejected},
		{"New", model.OrderStatusOpen, 0},
		{"Open", model.OrderStatusOpen, 0},
		{"PartiallyFilled", model.OrderStatusWorking, 0},
	}
	for _, c := range cases {
		u := toUpdate(wireOrder{
			AppOrderID:         "1128044930",
			OrderStatus:        c.venueStatus,
			CancelRejectReason: "RMS check failed",
		})
		if u.Status != c.want {
			t.Errorf("toUpdate(%q).Status = %s, want %s", c.venueStatus, u.Status, c.want)
		}
		if u.ErrorCode != c.wantCode {
			t.Errorf("toUpdate(%q).ErrorCode = %d, want %d", c.venueStatus, u.ErrorCode, c.wantCode)
		}
	}
}

func TestToUpdateFillFields(t *testing.T) {
	u := toUpdate(wireOrder{
		AppOrderID:              "1128044930",
		OrderStatus:             "Filled",
		OrderAverageTradedPrice: "104.35",
		CumulativeQuantity:      "150",
		ExchangeTransactTime:    "04-09-2025 10:21:33",
	})
	if u.VenueOrderID != "1128044930" {
		t.Errorf("venue id = %s", u.VenueOrderID)
	}
	if u.AvgTradePrice.String() != "104.35" || u.TradedQuantity != 150 {
		t.Errorf("fill = %d @ %s", u.TradedQuantity, u.AvgTradePrice)
	}
	if u.UpdatedAt.IsZero() {
		t.Error("transact time not parsed")
	}
	if u.UpdatedAt.Day() != 4 || u.UpdatedAt.Month() != 9 {
		t.Errorf("transact time = %s", u.UpdatedAt)
	}
}
