package game

import "fmt"

// basePrices[i] is the non-hidden price of a level i+1 weapon.
var basePrices = [MaxLevel]int64{
	10, 30, 90, 250, 1_000, 2_500, 10_000, 25_000, 37_500, 85_500,
	100_000, 300_000, 500_500, 1_600_500, 2_750_000, 4_050_500, 6_500_500, 10_973_000, 50_082_000, 1_000_000_000,
}

const hiddenPriceMultiplier = 4

// SellPrice is the listed price of a weapon: zero at level 0, times four when hidden.
func SellPrice(level int, hidden bool) int64 {
	if level <= 0 || level > MaxLevel {
		return 0
	}
	price := basePrices[level-1]
	if hidden {
		price *= hiddenPriceMultiplier
	}
	return price
}

// Payout is what a sale actually credits. Level 0 weapons salvage at 30%.
func Payout(level int, hidden bool) int64 {
	price := SellPrice(level, hidden)
	if level == 0 {
		price = price * 30 / 100
	}
	return price
}

// Power is the combat weight of a weapon: 10 + 2*level, times 1.5 when hidden, floored.
func Power(level int, hidden bool) int64 {
	p := int64(10 + 2*level)
	if hidden {
		p = p * 3 / 2
	}
	return p
}

// ExchangeAmount is the gold a battle loser hands over: 5% of their gold clamped to [1000, 1000000].
func ExchangeAmount(loserGold int64) int64 {
	amount := loserGold * 5 / 100
	if amount < MinBattleExchange {
		return MinBattleExchange
	}
	if amount > MaxBattleExchange {
		return MaxBattleExchange
	}
	return amount
}

// ConversionQuote describes a floor-divided conversion along the gold→choco→money ladder.
type ConversionQuote struct {
	From     Denomination `json:"from"`
	To       Denomination `json:"to"`
	Spent    int64        `json:"spent"`
	Received int64        `json:"received"`
}

func QuoteConversion(from, to Denomination, amount int64) (ConversionQuote, error) {
	if amount <= 0 {
		return ConversionQuote{}, ErrInvalidAmount
	}
	var rate int64
	switch {
	case from == Gold && to == Choco:
		rate = GoldPerChoco
	case from == Choco && to == Money:
		rate = ChocoPerMoney
	default:
		return ConversionQuote{}, fmt.Errorf("%w: %s to %s", ErrUnsupportedConversion, from, to)
	}
	units := amount / rate
	if units < 1 {
		return ConversionQuote{}, fmt.Errorf("%w: minimum is %d %s for 1 %s", ErrMinimumConversionNotMet, rate, from, to)
	}
	return ConversionQuote{From: from, To: to, Spent: units * rate, Received: units}, nil
}
