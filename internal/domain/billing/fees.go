package billing

import "github.com/shopspring/decimal"

// processingFeeRate is the card processing fee passed through to payors.
var processingFeeRate = decimal.RequireFromString("0.03")

// CalculateFee returns the processing fee in cents for a charge. The fee is
// waived for anything that is not a gateway card charge, and for debit,
// prepaid, or unknown-funding cards. Half-cent results round half away
// from zero.
func CalculateFee(method PaymentMethod, methodType PaymentMethodType, amountCents int64, funding CardFunding) int64 {
	if method != MethodPaymentGateway || methodType != MethodTypeCard {
		return 0
	}
	switch funding {
	case FundingDebit, FundingPrepaid, FundingUnknown:
		return 0
	}
	return decimal.NewFromInt(amountCents).Mul(processingFeeRate).Round(0).IntPart()
}
