package simulator

import (
	"encoding/csv"
	"io"
	"strconv"
)

var csvHeader = []string{"step", "mid", "last_price", "best_bid", "best_ask", "volume", "trades", "rejected"}

// WriteCSV exports history. formatPrice renders tick prices; nil writes raw
// ticks. Zero prices are written as empty cells.
func WriteCSV(w io.Writer, history []Point, formatPrice func(int64) string) error {
	if formatPrice == nil {
		formatPrice = func(p int64) string { return strconv.FormatInt(p, 10) }
	}
	price := func(p int64) string {
		if p == 0 {
			return ""
		}
		return formatPrice(p)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range history {
		record := []string{
			strconv.Itoa(p.Step),
			price(p.Mid),
			price(p.Last),
			price(p.BestBid),
			price(p.BestAsk),
			strconv.FormatUint(p.Volume, 10),
			strconv.Itoa(p.Trades),
			strconv.Itoa(p.Rejected),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
