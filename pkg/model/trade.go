package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/joripage/matching-engine/pkg/orderbook"
)

// Trade is the persisted and published form of one execution.
type Trade struct {
	TradeID         uuid.UUID      `json:"trade_id" gorm:"column:trade_id;type:uuid;primaryKey"`
	Symbol          string         `json:"symbol" gorm:"column:symbol"`
	Price           int64          `json:"price" gorm:"column:price"`
	Qty             uint64         `json:"qty" gorm:"column:qty"`
	RestingOrderID  uint64         `json:"resting_order_id" gorm:"column:resting_order_id"`
	IncomingOrderID uint64         `json:"incoming_order_id" gorm:"column:incoming_order_id"`
	Side            orderbook.Side `json:"side" gorm:"column:side"`
	ExecutedAt      time.Time      `json:"executed_at" gorm:"column:executed_at"`
	CreatedAt       time.Time      `json:"-" gorm:"column:created_at;autoCreateTime"`
}

func (Trade) TableName() string {
	return "trades"
}

// NewTrade stamps a fresh trade id on an execution.
func NewTrade(symbol string, r orderbook.MatchResult) *Trade {
	return &Trade{
		TradeID:         uuid.New(),
		Symbol:          symbol,
		Price:           r.Price,
		Qty:             r.Qty,
		RestingOrderID:  r.RestingOrderID,
		IncomingOrderID: r.IncomingOrderID,
		Side:            r.Side,
		ExecutedAt:      r.Timestamp,
	}
}
