//go:build !linux

package cmd

import "os"

func termWidth(*os.File) int { return 0 }

func isTerminal(*os.File) bool { return false }

func readSecret(f *os.File) (string, error) { return readLine(f) }
