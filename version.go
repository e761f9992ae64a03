package main

// Overridden at build time via -ldflags
var (
	version    = "1.0"
	commitHash = "dev"
)
