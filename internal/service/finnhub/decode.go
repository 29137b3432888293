package finnhub

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"StockIt/internal/domain/models"
)

// priceKeys mark a payload as a trade, checked in this order.
var priceKeys = []string{"p", "price", "lp"}

// DecodeFrame classifies a raw push message. The order is fixed: an explicit
// error type wins, then the presence of a price field makes a trade, anything
// else is a quote. Symbol and timestamp are left zero when the payload omits them.
func DecodeFrame(b []byte) (models.Frame, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return models.Frame{}, fmt.Errorf("decode frame: %w", err)
	}

	if typ, _ := raw["type"].(string); strings.EqualFold(typ, "error") {
		return models.Frame{Kind: models.FrameError, Message: firstString(raw, "msg", "message", "error")}, nil
	}

	if data, ok := raw["data"].([]interface{}); ok {
		f := models.Frame{Kind: models.FrameQuote}
		for _, item := range data {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			u, trade, ok := decodeUpdate(m)
			if !ok {
				continue
			}
			if trade {
				f.Kind = models.FrameTrade
			}
			f.Updates = append(f.Updates, u)
		}
		return f, nil
	}

	u, trade, ok := decodeUpdate(raw)
	f := models.Frame{Kind: models.FrameQuote}
	if trade {
		f.Kind = models.FrameTrade
	}
	if ok {
		f.Updates = []models.StockUpdate{u}
	}
	return f, nil
}

// decodeUpdate reads one payload object. trade reports whether a price field
// was present; ok reports whether a usable positive price was found at all.
func decodeUpdate(m map[string]interface{}) (u models.StockUpdate, trade, ok bool) {
	u.Symbol = strings.ToUpper(firstString(m, "s", "symbol"))

	if px, found := firstNumber(m, priceKeys...); found {
		trade = true
		u.Price = px
	} else if c, found := firstNumber(m, "c", "current"); found {
		u.Price = c
	} else {
		bid, hasBid := firstNumber(m, "bp", "bid")
		ask, hasAsk := firstNumber(m, "ap", "ask")
		if hasBid && hasAsk {
			u.Price = (bid + ask) / 2
		}
	}

	if v, found := firstNumber(m, "v", "volume"); found {
		u.Volume = v
	}
	if ts, found := firstNumber(m, "t", "timestamp"); found && ts > 0 {
		u.Timestamp = unixAny(int64(ts))
	}
	d, hasD := firstNumber(m, "d", "change")
	dp, hasDP := firstNumber(m, "dp", "change_percent", "changePercent")
	if hasD || hasDP {
		u.Change, u.ChangePercent, u.HasChange = d, dp, true
	}
	return u, trade, u.Price > 0
}

// unixAny accepts seconds or milliseconds.
func unixAny(v int64) time.Time {
	if v > 1e11 {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstNumber(m map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
