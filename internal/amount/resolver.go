// Package amount computes the final chargeable amount for a payment request
// from the request default, an optional signed override token and an optional
// payer-chosen custom amount.
package amount

import "github.com/ogcio/payments-api/internal/domain"

// Resolver applies the amount precedence rules. Override tokens are
// backend-issued and outrank payer-supplied custom amounts; custom amounts are
// only honoured when the request explicitly permits them.
type Resolver struct {
	verifier TokenVerifier
	ceiling  int64
}

func NewResolver(verifier TokenVerifier, ceiling int64) *Resolver {
	return &Resolver{verifier: verifier, ceiling: ceiling}
}

// Resolve returns the amount to charge, in minor units. customAmount <= 0
// means "not supplied"; overrideToken == "" means "not supplied".
//
// A token that fails verification fails the whole resolution rather than
// falling through to a lower-precedence amount: an unauthorised link must not
// leak a different, possibly lower, charge.
func (r *Resolver) Resolve(req *domain.PaymentRequest, customAmount int64, overrideToken string) (int64, error) {
	if overrideToken != "" && req.AllowAmountOverride {
		amount, err := r.verifier.Verify(overrideToken)
		if err != nil {
			return 0, &domain.ValidationError{Field: "amount_token", Reason: "invalid or expired override token"}
		}
		return amount, nil
	}

	if customAmount != 0 && req.AllowCustomAmount {
		if customAmount < 1 || customAmount > r.ceiling {
			return 0, &domain.ValidationError{Field: "custom_amount", Reason: "amount must be positive and within the permitted maximum"}
		}
		return customAmount, nil
	}

	return req.Amount, nil
}
