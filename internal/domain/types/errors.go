package types

import "errors"

var (
	ErrNotFound        = errors.New("requested item not found")
	ErrCourierNotFound = errors.New("courier not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrEventNotFound   = errors.New("traffic event not found")
	ErrCellNotFound    = errors.New("traffic cell not found")
	ErrConfigNotFound  = errors.New("dispatch configuration not found")

	ErrCourierAlreadyOnline = errors.New("courier already online")
	ErrCourierOffline       = errors.New("courier is offline")

	ErrOrderAlreadyTaken = errors.New("order already taken by another courier")
	ErrOrderNotPending   = errors.New("order is not pending")
	ErrNoCandidates      = errors.New("no candidate couriers found")
	ErrSearchExhausted   = errors.New("dispatch search exhausted max radius")
	ErrDispatchCancelled = errors.New("dispatch search cancelled")
	ErrOfferDeclined     = errors.New("courier declined the offer")
	ErrOfferNotFound     = errors.New("no live offer for this courier")

	ErrSelfVote      = errors.New("cannot vote on own report")
	ErrDuplicateVote = errors.New("already voted in this direction")
	ErrEventExpired  = errors.New("traffic event expired")
	ErrForbidden     = errors.New("operation not permitted for this user")

	ErrInvalidCoordinates = errors.New("invalid coordinates")

	ErrDatabaseFailed = errors.New("database operation failed")
)
