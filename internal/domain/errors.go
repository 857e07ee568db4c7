package domain

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrMissingMarketData   = errors.New("at least one side of the order book is unknown")
	ErrEmptyAccount        = errors.New("account has no assets")
	ErrUnsupportedStrategy = errors.New("strategy not yet supported")
	ErrNotFound            = errors.New("not found")
)
