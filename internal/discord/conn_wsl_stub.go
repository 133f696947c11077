//go:build !linux && !windows

package discord

func unavailableHint() string { return "" }
