package store

import "errors"

var (
	ErrCorruptLedger = errors.New("store: ledger file is not valid JSON")
	ErrBucketMissing = errors.New("store: bucket does not exist")
)
