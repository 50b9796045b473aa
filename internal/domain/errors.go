package domain

import "errors"

// Domain errors
var (
	ErrUserNotFound     = errors.New("codewars user not found")
	ErrBaselineNotFound = errors.New("no baseline snapshot for date")
	ErrStateUnavailable = errors.New("bot state unavailable")
	ErrInvalidRequest   = errors.New("invalid request")
)
