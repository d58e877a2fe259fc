package orderbook

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrder       = errors.New("invalid order")
	ErrDuplicateOrder     = fmt.Errorf("%w: duplicate order id", ErrInvalidOrder)
	ErrRejectedUnfillable = errors.New("rejected: not enough liquidity to fill")
	ErrOrderNotFound      = errors.New("order not found")
	ErrBookInvariant      = errors.New("book invariant violated")
)
