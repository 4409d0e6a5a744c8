// Package commission is the single authority for the fee schedule and the
// cancellation refund matrix. Rates live here and nowhere else; the split is
// computed once at approval time and frozen onto the transaction.
package commission

import (
	"math"

	"nestfind-backend/internal/domain"
)

// Fee schedule, as percentages of the sale price.
const (
	// AgentPoolRate is the total agent payout. A single-agent deal pays it
	// all to that agent; a two-agent deal splits it evenly.
	AgentPoolRate = 0.007
	// Platform fee is sourced from both sides of the deal.
	PlatformSellerRate = 0.002
	PlatformBuyerRate  = 0.001
)

// Deal types for the two-tier schedule.
const (
	DealSingleAgent = "SINGLE_AGENT"
	DealTwoAgent    = "TWO_AGENT"
)

// Split is the frozen commission breakdown recorded on the transaction.
type Split struct {
	DealType          string  `json:"deal_type"`
	TotalPrice        float64 `json:"total_price"`
	AgentCommission   float64 `json:"agent_commission"`
	SellerAgentShare  float64 `json:"seller_agent_share"`
	BuyerAgentShare   float64 `json:"buyer_agent_share"`
	PlatformFee       float64 `json:"platform_fee"`
	PlatformSellerFee float64 `json:"platform_seller_fee"`
	PlatformBuyerFee  float64 `json:"platform_buyer_fee"`
}

// Compute returns the commission split for a sale price. twoAgent selects the
// two-agent tier where the agent pool is divided between seller-side and
// buyer-side agents.
func Compute(totalPrice float64, twoAgent bool) Split {
	pool := round2(totalPrice * AgentPoolRate)
	sellerFee := round2(totalPrice * PlatformSellerRate)
	buyerFee := round2(totalPrice * PlatformBuyerRate)

	s := Split{
		DealType:          DealSingleAgent,
		TotalPrice:        totalPrice,
		AgentCommission:   pool,
		SellerAgentShare:  pool,
		PlatformFee:       round2(sellerFee + buyerFee),
		PlatformSellerFee: sellerFee,
		PlatformBuyerFee:  buyerFee,
	}
	if twoAgent {
		s.DealType = DealTwoAgent
		s.SellerAgentShare = round2(pool / 2)
		s.BuyerAgentShare = round2(pool - s.SellerAgentShare)
	}
	return s
}

// refundMatrix maps the furthest stage a transaction reached to the percentage
// of the buyer's deposit refunded on cancellation. The later the stage, the
// more of the process (agent visit, registration slot, payment handling) has
// already been spent.
var refundMatrix = map[string]float64{
	domain.TxInitiated:        100,
	domain.TxSlotBooked:       90,
	domain.TxBuyerVerified:    75,
	domain.TxSellerVerified:   75,
	domain.TxAllVerified:      75,
	domain.TxSellerPaid:       50,
	domain.TxDocumentsPending: 50,
	domain.TxAdminReview:      25,
}

// RefundPercent returns the refund tier for a cancellation from the given
// status. Unknown statuses fall to 0 rather than guessing a refund.
func RefundPercent(status string) float64 {
	return refundMatrix[status]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
