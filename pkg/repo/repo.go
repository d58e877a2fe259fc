package repo

import (
	"github.com/cockroachdb/pebble"
	"gorm.io/gorm"
)

type IRepo interface {
	Trade() ITrade
}

type Repo struct {
	trade ITrade
}

// NewRepo stores trades in Postgres.
func NewRepo(tradeDB *gorm.DB) IRepo {
	return &Repo{
		trade: NewTradeSQLRepo(tradeDB),
	}
}

// NewPebbleRepo stores trades in an embedded pebble database.
func NewPebbleRepo(db *pebble.DB) IRepo {
	return &Repo{
		trade: NewTradePebbleRepo(db),
	}
}

func (r *Repo) Trade() ITrade {
	return r.trade
}
