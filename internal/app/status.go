package app

import (
	"github.com/bryanchriswhite/SnapFrame/internal/capture"
	"github.com/bryanchriswhite/SnapFrame/internal/geometry"
)

// StatusKind classifies progress reports.
type StatusKind string

const (
	StatusCountdown StatusKind = "countdown"
	StatusCapturing StatusKind = "capturing"
	StatusCaptured  StatusKind = "captured"
	StatusCancelled StatusKind = "cancelled"
	StatusFailed    StatusKind = "failed"
)

// Status is one progress report of a capture.
type Status struct {
	Kind    StatusKind `json:"kind"`
	Message string     `json:"message"`

	// Remaining is set for countdown reports.
	Remaining int `json:"remaining,omitempty"`

	Backend capture.BackendID `json:"backend,omitempty"`
	Rect    *geometry.Rect    `json:"rect,omitempty"`
}

// StatusFunc receives progress reports.
type StatusFunc func(Status)
