package execution

// Paper fills execute immediately at the quoted close, moved against the
// trader by the configured slippage: buys fill higher, sells fill lower.

// BuyFillPrice returns the simulated entry price for a quoted close.
func BuyFillPrice(price, slippageBps float64) float64 {
	return price * (1 + slippageBps/1e4)
}

// SellFillPrice returns the simulated exit price for a quoted close.
func SellFillPrice(price, slippageBps float64) float64 {
	return price * (1 - slippageBps/1e4)
}
