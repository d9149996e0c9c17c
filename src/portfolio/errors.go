package portfolio

import "errors"

var (
	ErrInvalidUnit            = errors.New("unit is NaN or infinite")
	ErrStaleTimestamp         = errors.New("timestamp is prior to last position timestamp")
	ErrPositionExists         = errors.New("position already exists")
	ErrNegativeExecutionLevel = errors.New("negative execution level")
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidTransition      = errors.New("illegal order status transition")
	ErrDoubleBooking          = errors.New("order already booked")
	ErrNoReserve              = errors.New("no reserve instrument configured")
)
