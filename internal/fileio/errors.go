package fileio

import "errors"

var (
	ErrInvalidHandle   = errors.New("fileio: invalid handle")
	ErrTooLarge        = errors.New("fileio: transfer exceeds single-operation limit")
	ErrNegativeOffset  = errors.New("fileio: negative offset")
	ErrPositionUnknown = errors.New("fileio: position unknown")
	ErrShortTransfer   = errors.New("fileio: short transfer")
	ErrAccess          = errors.New("fileio: handle not opened for writing")
	ErrTokenResolved   = errors.New("fileio: token already resolved")
	ErrForeignToken    = errors.New("fileio: token issued against another handle")
	ErrClosed          = errors.New("fileio: system closed")
	ErrBackend         = errors.New("fileio: backend unsupported on this platform")
)
