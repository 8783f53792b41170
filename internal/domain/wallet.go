package domain

import "github.com/shopspring/decimal"

// WalletSummary holds wallet balances in the wallet's own currency.
type WalletSummary struct {
	WalletID    string          `json:"wallet_id"`
	Currency    string          `json:"currency"`
	Available   decimal.Decimal `json:"available"`
	Betted      decimal.Decimal `json:"betted"`
	Withdrawing decimal.Decimal `json:"withdrawing"`
}

// TopWalletSummary is a ranked wallet with balances converted to the reporting currency.
type TopWalletSummary struct {
	WalletID    string          `json:"wallet_id"`
	Available   decimal.Decimal `json:"available"`
	Betted      decimal.Decimal `json:"betted"`
	Withdrawing decimal.Decimal `json:"withdrawing"`
}

// Total returns the sum of all three balances.
func (s TopWalletSummary) Total() decimal.Decimal {
	return s.Available.Add(s.Betted).Add(s.Withdrawing)
}

// Equal reports whether both summaries carry the same wallet and balances.
func (s TopWalletSummary) Equal(other TopWalletSummary) bool {
	return s.WalletID == other.WalletID &&
		s.Available.Equal(other.Available) &&
		s.Betted.Equal(other.Betted) &&
		s.Withdrawing.Equal(other.Withdrawing)
}

// TopWalletSummaryQuery asks for the top wallets ranked by total value.
type TopWalletSummaryQuery struct {
	Size int
}

// TopWalletsChange is an update to the top wallets list.
// Implemented by TopWalletsMemberChange and TopWalletsValueChange.
type TopWalletsChange interface {
	topWalletsChange()
}

// TopWalletsMemberChange replaces the whole ranked list.
type TopWalletsMemberChange struct {
	Summaries []TopWalletSummary
}

// TopWalletsValueChange updates the balances at one ranked position.
type TopWalletsValueChange struct {
	Position int
	Summary  TopWalletSummary
}

func (TopWalletsMemberChange) topWalletsChange() {}
func (TopWalletsValueChange) topWalletsChange()  {}
